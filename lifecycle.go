// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

// LifecycleState is the coarse state of a Cluster.
type LifecycleState int32

const (
	// Idle is the state of a Cluster that has not been started, or whose
	// fail-fast Start was rejected.
	Idle LifecycleState = iota

	// Starting is held only while Start is running.
	Starting

	// Started means Send accepts records. A best-effort Start reaches this
	// state even when the broker could not be reached; see Cluster.InitError.
	Started

	// Stopped is terminal.
	Stopped
)

// String returns the string representation of the LifecycleState.
func (s LifecycleState) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Starting:
		return "Starting"
	case Started:
		return "Started"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// StartPolicy selects how Start reports initialization failures.
type StartPolicy int

const (
	// StartBestEffort logs initialization failures and still moves the
	// cluster to Started. Sends then fail per destination at publisher
	// creation time. This is the default.
	StartBestEffort StartPolicy = iota

	// StartFailFast returns initialization failures from Start and leaves
	// the cluster Idle so Start may be retried.
	StartFailFast
)

// String returns the string representation of the StartPolicy.
func (p StartPolicy) String() string {
	switch p {
	case StartBestEffort:
		return "BestEffort"
	case StartFailFast:
		return "FailFast"
	default:
		return "Unknown"
	}
}
