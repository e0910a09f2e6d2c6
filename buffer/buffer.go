// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package buffer provides the holding queue that sits in front of a
// kafkasink.Cluster.
//
// Records enter through Admit, which reserves their body size against a
// byte capacity. The capacity stays reserved while the record waits, while
// it is in flight, and while it waits again after a failed send (Offer).
// It is returned only by Release, once the record has been delivered or
// dropped for good.
package buffer

import (
	"context"
	"errors"
	"sync"

	"github.com/eapache/queue"
	"github.com/xmidt-org/kafkasink"
	"golang.org/x/sync/semaphore"
)

// ErrTooLarge is returned by Admit for a record bigger than the whole
// buffer capacity.
var ErrTooLarge = errors.New("record larger than buffer capacity")

// Queue is a FIFO of records bounded by total body bytes.
//
// Queue implements kafkasink.Buffer. All methods are safe for concurrent use.
type Queue struct {
	capacity int64
	sem      *semaphore.Weighted

	mu          sync.Mutex
	records     *queue.Queue
	outstanding int64
	notify      chan struct{}
}

var _ kafkasink.Buffer = (*Queue)(nil)

// New returns a Queue holding at most capacity body bytes.
func New(capacity int64) *Queue {
	return &Queue{
		capacity: capacity,
		sem:      semaphore.NewWeighted(capacity),
		records:  queue.New(),
		notify:   make(chan struct{}, 1),
	}
}

// Admit reserves r's size and enqueues it, waiting for capacity until ctx
// is done.
func (q *Queue) Admit(ctx context.Context, r *kafkasink.Record) error {
	n := r.Size()
	if n > q.capacity {
		return ErrTooLarge
	}
	if err := q.sem.Acquire(ctx, n); err != nil {
		return err
	}
	q.push(r, n)
	return nil
}

// TryAdmit is Admit without waiting. It reports whether r was admitted.
func (q *Queue) TryAdmit(r *kafkasink.Record) bool {
	n := r.Size()
	if n > q.capacity || !q.sem.TryAcquire(n) {
		return false
	}
	q.push(r, n)
	return true
}

// Offer re-enqueues a record whose capacity is still reserved, typically
// after a failed send. It never blocks and never drops.
func (q *Queue) Offer(r *kafkasink.Record) {
	q.push(r, 0)
}

// Release returns n bytes of capacity. Releasing more than is outstanding
// is clamped.
func (q *Queue) Release(n int64) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	if n > q.outstanding {
		n = q.outstanding
	}
	q.outstanding -= n
	q.mu.Unlock()

	if n > 0 {
		q.sem.Release(n)
	}
}

// Poll removes and returns the oldest record, waiting until one is
// available or ctx is done.
func (q *Queue) Poll(ctx context.Context) (*kafkasink.Record, error) {
	for {
		if r, ok := q.TryPoll(); ok {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryPoll removes and returns the oldest record, if any.
func (q *Queue) TryPoll() (*kafkasink.Record, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.records.Length() == 0 {
		return nil, false
	}
	r := q.records.Remove().(*kafkasink.Record)
	if q.records.Length() > 0 {
		q.signal()
	}
	return r, true
}

// Len returns the number of queued records.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.records.Length()
}

// Outstanding returns the reserved bytes: queued plus in flight.
func (q *Queue) Outstanding() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// Capacity returns the configured byte capacity.
func (q *Queue) Capacity() int64 {
	return q.capacity
}

func (q *Queue) push(r *kafkasink.Record, reserved int64) {
	q.mu.Lock()
	q.records.Add(r)
	q.outstanding += reserved
	q.signal()
	q.mu.Unlock()
}

// signal wakes one poller. Must be called with q.mu held.
func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
