// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package daemon

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xmidt-org/kafkasink"
)

const (
	retryBackoffBase = 10 * time.Millisecond
	retryBackoffMax  = time.Second
)

// retryBackoff paces the drain loop while records are being offered back.
// Every consecutive delivery failure doubles the delay up to max, and a
// delivery resets it. Drops do not count: they never come back.
type retryBackoff struct {
	base     time.Duration
	max      time.Duration
	failures atomic.Int64
}

func newRetryBackoff() *retryBackoff {
	return &retryBackoff{base: retryBackoffBase, max: retryBackoffMax}
}

// observe is a kafkasink.SendEvent listener.
func (b *retryBackoff) observe(e *kafkasink.SendEvent) {
	switch {
	case e.Dropped:
	case e.Error != nil:
		b.failures.Add(1)
	default:
		b.failures.Store(0)
	}
}

func (b *retryBackoff) delay() time.Duration {
	n := b.failures.Load()
	if n <= 0 {
		return 0
	}

	d := b.base
	for i := int64(1); i < n; i++ {
		d *= 2
		if d >= b.max {
			return b.max
		}
	}
	return min(d, b.max)
}

// wait sleeps for the current delay, returning early with ctx's error.
func (b *retryBackoff) wait(ctx context.Context) error {
	d := b.delay()
	if d == 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
