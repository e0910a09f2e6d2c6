// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/kafkasink/metrics"
	"golang.org/x/sync/semaphore"
)

// pipeline moves one record from Send to its completion.
//
// Every record handed to publish ends in exactly one of:
//   - delivered: capacity released, success counted;
//   - failed after submission: offered back to the buffer with its
//     capacity still reserved, failure counted;
//   - dropped before submission: capacity released, failure counted.
type pipeline struct {
	proxyClusterID string
	sinkID         string

	// pool is nil until the cluster has been started.
	pool *producerPool

	buffer  Buffer
	metrics Metrics
	logger  kgo.Logger
	events  *eventor.Eventor[func(*SendEvent)]

	// block selects Produce over TryProduce and waiting over failing when
	// pending is exhausted.
	block bool

	// pending bounds in-flight records across all publishers. Nil means
	// unbounded.
	pending *semaphore.Weighted

	now func() time.Time
}

// publish submits r and reports whether it was handed off for
// asynchronous delivery. It never waits for a broker acknowledgment.
func (p *pipeline) publish(ctx context.Context, r *Record) bool {
	start := p.now()

	topic := r.Topic()
	if topic == "" {
		p.drop(r, topic, start, ErrMissingDestination)
		return false
	}
	if p.pool == nil {
		p.drop(r, topic, start, ErrNotStarted)
		return false
	}

	pub, err := p.pool.getOrCreate(topic)
	if err != nil {
		p.drop(r, topic, start, err)
		return false
	}

	rec := &kgo.Record{
		Topic:   topic,
		Value:   r.Body,
		Headers: recordHeaders(r.Headers),
	}
	if key, ok := r.Key(); ok {
		rec.Key = []byte(key)
	}

	if err := p.acquire(ctx); err != nil {
		p.complete(r, topic, start, err)
		return true
	}

	sendTime := p.now()
	promise := func(_ *kgo.Record, err error) {
		p.releaseSlot()
		p.complete(r, topic, sendTime, err)
	}

	if p.block {
		pub.Produce(ctx, rec, promise)
	} else {
		pub.TryProduce(ctx, rec, promise)
	}
	return true
}

// complete is the single completion path for submitted records.
func (p *pipeline) complete(r *Record, topic string, sendTime time.Time, err error) {
	item := p.metrics.FindOrCreate(p.dimension(r, topic))
	size := r.Size()
	event := SendEvent{
		Topic:       topic,
		IngestionID: r.IngestionID(),
		Size:        size,
	}

	if err != nil {
		p.logger.Log(kgo.LogLevelError, "send failed", "topic", topic, "error", err)
		p.buffer.Offer(r)
		item.RecordFailure(size)
		p.dispatchEvent(&event, sendTime, err)
		return
	}

	now := p.now()
	p.buffer.Release(size)
	item.RecordSuccess(size,
		elapsed(sendTime, now),
		elapsed(r.SourceTime(sendTime), now),
		elapsed(r.MsgTime(sendTime), now),
	)
	p.dispatchEvent(&event, sendTime, nil)
}

// drop discards a record that never reached a publisher. Retrying it
// would hit the same resolution failure, so it is not offered back.
func (p *pipeline) drop(r *Record, topic string, start time.Time, err error) {
	p.logger.Log(kgo.LogLevelError, "dropping record", "topic", topic, "error", err)

	size := r.Size()
	p.buffer.Release(size)
	p.metrics.FindOrCreate(p.dimension(r, topic)).RecordFailure(size)

	p.dispatchEvent(&SendEvent{
		Topic:       topic,
		IngestionID: r.IngestionID(),
		Size:        size,
		Dropped:     true,
	}, start, err)
}

func (p *pipeline) dimension(r *Record, topic string) metrics.Dimension {
	return metrics.Dimension{
		ClusterID:     p.proxyClusterID,
		SinkID:        p.sinkID,
		DestinationID: topic,
		IngestionID:   r.IngestionID(),
	}
}

// acquire takes one cross-destination pending slot.
func (p *pipeline) acquire(ctx context.Context) error {
	if p.pending == nil {
		return nil
	}
	if p.block {
		return p.pending.Acquire(ctx, 1)
	}
	if !p.pending.TryAcquire(1) {
		return ErrBufferFull
	}
	return nil
}

func (p *pipeline) releaseSlot() {
	if p.pending != nil {
		p.pending.Release(1)
	}
}

// elapsed returns now - since, floored at zero so that clock skew in
// record headers never decrements a counter.
func elapsed(since, now time.Time) time.Duration {
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}
