// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import "time"

// SendEvent describes the end of one record's trip through the cluster:
// delivered, failed and offered back to the buffer, or dropped before it
// reached a publisher.
type SendEvent struct {
	// Cluster is the cluster name.
	Cluster string

	// Topic is the destination topic; empty when the record had none.
	Topic string

	// IngestionID is the record's ingestion stream.
	IngestionID string

	// Size is the record's body size in bytes.
	Size int64

	// Dropped is true when the record was dropped synchronously because no
	// publisher could be resolved. Its buffer capacity has been released.
	// When false and Error is set, the record was offered back to the buffer.
	Dropped bool

	// Error is the error that occurred (nil for delivered records).
	Error error

	// ErrorType is the error classification (empty for delivered records).
	// Values: "publisher_create_error", "buffer_full", "broker_error", "timeout", etc.
	ErrorType string

	// Duration is the time from Send to completion.
	Duration time.Duration
}

// AddSendEventListener adds a listener for record completions and drops.
// The returned function removes the listener.
//
// Listeners are called from franz-go's promise goroutines as well as from
// Send, and must be thread-safe and quick.
func (c *Cluster) AddSendEventListener(fn func(*SendEvent)) func() {
	return c.sendEventListeners.Add(fn)
}

// dispatchEvent dispatches a SendEvent to all registered listeners.
func (p *pipeline) dispatchEvent(event *SendEvent, since time.Time, err error) {
	if err != nil {
		event.Error = err
		event.ErrorType = errorType(err)
	}
	event.Cluster = p.sinkID
	event.Duration = p.now().Sub(since)

	p.events.Visit(func(listener func(*SendEvent)) {
		listener(event)
	})
}
