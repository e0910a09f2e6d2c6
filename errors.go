// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"
)

var (
	// ErrValidation indicates configuration validation failed.
	ErrValidation = &metricError{
		metric:  "validation_error",
		message: "validation error",
	}

	// ErrConnect indicates the broker connection could not be established.
	ErrConnect = &metricError{
		metric:  "connect_error",
		message: "broker connection failed",
	}

	// ErrPublisherCreate indicates a per-topic publisher could not be created.
	ErrPublisherCreate = &metricError{
		metric:  "publisher_create_error",
		message: "publisher creation failed",
	}

	// ErrMissingDestination indicates a record carried no topic header.
	ErrMissingDestination = &metricError{
		metric:  "missing_destination",
		message: "record has no destination",
	}

	// ErrBufferFull indicates the pending-message limit was reached and the
	// cluster is configured not to block.
	ErrBufferFull = &metricError{
		metric:  "buffer_full",
		message: "buffer full",
	}

	// ErrBroker indicates Kafka rejected or failed the record.
	ErrBroker = &metricError{
		metric:  "broker_error",
		message: "broker error",
	}

	// ErrTimeout indicates the record was not delivered within SendTimeout.
	ErrTimeout = &metricError{
		metric:  "timeout",
		message: "timeout",
	}

	// ErrNotStarted indicates the cluster has not been started.
	ErrNotStarted = &metricError{
		metric:  "not_started",
		message: "cluster not started",
	}

	// ErrStopped indicates the cluster has been stopped.
	ErrStopped = &metricError{
		metric:  "stopped",
		message: "cluster stopped",
	}

	// ErrAlreadyStarted indicates Start was called more than once.
	ErrAlreadyStarted = &metricError{
		metric:  "already_started",
		message: "cluster already started",
	}
)

// metricError is an internal error type that wraps errors with a type classification
// for metrics and observability.
type metricError struct {
	metric  string // label used by SendEvent.ErrorType
	message string
}

// Error implements the error interface.
func (e *metricError) Error() string {
	return e.message
}

func (e *metricError) Metric() string {
	return e.metric
}

func (e *metricError) Is(target error) bool {
	if t, ok := target.(*metricError); ok {
		return e.message == t.message
	}
	return false
}

// errorType extracts the error type string for metrics classification.
// Sentinels in the chain win; franz-go errors are mapped onto the closest
// sentinel so listeners see a bounded label set.
func errorType(err error) string {
	if err == nil {
		return ""
	}

	var me *metricError
	if errors.As(err, &me) {
		return me.Metric()
	}

	switch {
	case errors.Is(err, kgo.ErrRecordTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout.Metric()
	case errors.Is(err, kgo.ErrMaxBuffered):
		return ErrBufferFull.Metric()
	case errors.Is(err, context.Canceled):
		return "canceled"
	}

	return ErrBroker.Metric()
}
