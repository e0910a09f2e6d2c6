// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/kafkasink/metrics"
	"golang.org/x/sync/semaphore"
)

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type pipelineHarness struct {
	pipe    *pipeline
	factory *fakeFactory
	metrics *metrics.ItemSet
	events  *eventor.Eventor[func(*SendEvent)]
	clock   *testClock

	mu  sync.Mutex
	got []SendEvent
}

func newPipelineHarness(f *fakeFactory, buf Buffer) *pipelineHarness {
	h := &pipelineHarness{
		factory: f,
		metrics: metrics.NewItemSet(),
		events:  &eventor.Eventor[func(*SendEvent)]{},
		clock:   &testClock{now: time.UnixMilli(1_700_000_000_000)},
	}
	h.events.Add(func(e *SendEvent) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.got = append(h.got, *e)
	})
	h.pipe = &pipeline{
		proxyClusterID: "proxy",
		sinkID:         "c1",
		pool:           newTestPool(f.new),
		buffer:         buf,
		metrics:        h.metrics,
		logger:         &nopLogger{},
		events:         h.events,
		block:          true,
		now:            h.clock.Now,
	}
	return h
}

func (h *pipelineHarness) sendEvents() []SendEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]SendEvent(nil), h.got...)
}

func (h *pipelineHarness) snapshot(topic, ingestion string) metrics.Snapshot {
	return h.metrics.FindOrCreate(metrics.Dimension{
		ClusterID:     "proxy",
		SinkID:        "c1",
		DestinationID: topic,
		IngestionID:   ingestion,
	}).Snapshot()
}

func record(topic, body string) *Record {
	r := &Record{Body: []byte(body), Headers: map[string]string{}}
	if topic != "" {
		r.Headers[HeaderTopic] = topic
	}
	return r
}

func TestPipeline_ThreeRecordsOneTopic(t *testing.T) {
	t.Parallel()
	f := &fakeFactory{hold: true}
	buf := &fakeBuffer{}
	h := newPipelineHarness(f, buf)

	for _, body := range []string{"a", "bb", "ccc"} {
		assert.True(t, h.pipe.publish(context.Background(), record("topicA", body)))
	}

	assert.Equal(t, 1, h.pipe.pool.size())
	clients := f.all()
	require.Len(t, clients, 1)
	assert.Len(t, clients[0].records(), 3)

	// Nothing is released before the broker acknowledges.
	released, releases, _ := buf.state()
	assert.Zero(t, released)
	assert.Zero(t, releases)

	clients[0].complete(nil)

	released, releases, offered := buf.state()
	assert.Equal(t, int64(6), released)
	assert.Equal(t, 3, releases)
	assert.Empty(t, offered)

	snap := h.snapshot("topicA", "")
	assert.Equal(t, int64(3), snap.SuccessCount)
	assert.Equal(t, int64(6), snap.SuccessBytes)
	assert.Zero(t, snap.FailCount)
}

func TestPipeline_RecordConversion(t *testing.T) {
	t.Parallel()
	f := &fakeFactory{hold: true}
	h := newPipelineHarness(f, &fakeBuffer{})

	keyed := record("t", "body")
	keyed.Headers[HeaderMessageKey] = "device-1"
	keyed.Headers["custom"] = "x"
	unkeyed := record("t", "body")

	require.True(t, h.pipe.publish(context.Background(), keyed))
	require.True(t, h.pipe.publish(context.Background(), unkeyed))

	recs := f.all()[0].records()
	require.Len(t, recs, 2)

	assert.Equal(t, "t", recs[0].Topic)
	assert.Equal(t, []byte("device-1"), recs[0].Key)
	assert.Equal(t, []byte("body"), recs[0].Value)
	assert.Contains(t, recs[0].Headers, kgo.RecordHeader{Key: "custom", Value: []byte("x")})

	assert.Nil(t, recs[1].Key)
}

func TestPipeline_Drops(t *testing.T) {
	t.Parallel()

	t.Run("missing topic", func(t *testing.T) {
		t.Parallel()
		f := &fakeFactory{}
		buf := &fakeBuffer{}
		h := newPipelineHarness(f, buf)

		r := record("", "12345")
		r.Headers[HeaderIngestionID] = "ing"
		assert.False(t, h.pipe.publish(context.Background(), r))

		released, _, offered := buf.state()
		assert.Equal(t, int64(5), released)
		assert.Empty(t, offered)
		assert.Zero(t, f.calls.Load())
		assert.Equal(t, int64(1), h.snapshot("", "ing").FailCount)

		events := h.sendEvents()
		require.Len(t, events, 1)
		assert.True(t, events[0].Dropped)
		assert.Equal(t, "missing_destination", events[0].ErrorType)
		assert.Equal(t, "c1", events[0].Cluster)
	})

	t.Run("not started", func(t *testing.T) {
		t.Parallel()
		buf := &fakeBuffer{}
		h := newPipelineHarness(&fakeFactory{}, buf)
		h.pipe.pool = nil

		assert.False(t, h.pipe.publish(context.Background(), record("t", "ab")))
		released, _, _ := buf.state()
		assert.Equal(t, int64(2), released)
		assert.ErrorIs(t, h.sendEvents()[0].Error, ErrNotStarted)
	})

	t.Run("publisher creation fails", func(t *testing.T) {
		t.Parallel()
		buf := &fakeBuffer{}
		h := newPipelineHarness(&fakeFactory{err: errors.New("no brokers")}, buf)

		assert.False(t, h.pipe.publish(context.Background(), record("t", "abc")))

		released, _, offered := buf.state()
		assert.Equal(t, int64(3), released)
		assert.Empty(t, offered)
		assert.Equal(t, int64(1), h.snapshot("t", "").FailCount)
		assert.Equal(t, int64(3), h.snapshot("t", "").FailBytes)
		assert.Equal(t, "publisher_create_error", h.sendEvents()[0].ErrorType)
	})
}

func TestPipeline_SendFailureOffersBack(t *testing.T) {
	t.Parallel()
	f := &fakeFactory{hold: true}
	buf := &mockBuffer{}
	h := newPipelineHarness(f, buf)

	r := record("t", "abcd")
	buf.On("Offer", r).Return().Once()

	require.True(t, h.pipe.publish(context.Background(), r))
	f.all()[0].complete(kgo.ErrRecordTimeout)

	buf.AssertExpectations(t)
	buf.AssertNotCalled(t, "Release", mock.Anything)

	snap := h.snapshot("t", "")
	assert.Equal(t, int64(1), snap.FailCount)
	assert.Equal(t, int64(4), snap.FailBytes)
	assert.Zero(t, snap.SuccessCount)

	events := h.sendEvents()
	require.Len(t, events, 1)
	assert.False(t, events[0].Dropped)
	assert.Equal(t, "timeout", events[0].ErrorType)
}

func TestPipeline_Durations(t *testing.T) {
	t.Parallel()
	f := &fakeFactory{hold: true}
	h := newPipelineHarness(f, &fakeBuffer{})

	now := h.clock.Now()
	r := record("t", "x")
	r.Headers[HeaderMsgTime] = strconv.FormatInt(now.Add(-5*time.Second).UnixMilli(), 10)
	r.Headers[HeaderSourceTime] = strconv.FormatInt(now.Add(-2*time.Second).UnixMilli(), 10)

	require.True(t, h.pipe.publish(context.Background(), r))
	h.clock.Advance(100 * time.Millisecond)
	f.all()[0].complete(nil)

	snap := h.snapshot("t", "")
	assert.Equal(t, int64(100), snap.SinkDuration)
	assert.Equal(t, int64(2100), snap.NodeDuration)
	assert.Equal(t, int64(5100), snap.WholeDuration)

	t.Run("future timestamps do not decrement", func(t *testing.T) {
		r := record("t", "y")
		r.Headers[HeaderMsgTime] = strconv.FormatInt(h.clock.Now().Add(time.Hour).UnixMilli(), 10)

		require.True(t, h.pipe.publish(context.Background(), r))
		f.all()[0].complete(nil)

		after := h.snapshot("t", "")
		assert.Equal(t, snap.WholeDuration, after.WholeDuration)
		assert.Equal(t, snap.NodeDuration, after.NodeDuration)
	})
}

func TestPipeline_ProduceMode(t *testing.T) {
	t.Parallel()

	ack := func(args mock.Arguments) {
		cb := args.Get(2).(func(*kgo.Record, error))
		cb(args.Get(1).(*kgo.Record), nil)
	}

	tests := []struct {
		name   string
		block  bool
		method string
	}{
		{name: "blocking", block: true, method: "Produce"},
		{name: "non-blocking", block: false, method: "TryProduce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := &mockKafkaClient{}
			client.On(tt.method, mock.Anything, mock.Anything, mock.Anything).Run(ack).Return().Once()

			buf := &fakeBuffer{}
			h := newPipelineHarness(&fakeFactory{}, buf)
			h.pipe.pool.factory = func(...kgo.Opt) (kafkaClient, error) { return client, nil }
			h.pipe.block = tt.block

			assert.True(t, h.pipe.publish(context.Background(), record("t", "ab")))

			client.AssertExpectations(t)
			released, _, _ := buf.state()
			assert.Equal(t, int64(2), released)
		})
	}
}

func TestPipeline_PendingLimit(t *testing.T) {
	t.Parallel()

	t.Run("non-blocking fails when full", func(t *testing.T) {
		t.Parallel()
		f := &fakeFactory{hold: true}
		buf := &fakeBuffer{}
		h := newPipelineHarness(f, buf)
		h.pipe.block = false
		h.pipe.pending = semaphore.NewWeighted(1)

		first := record("t", "a")
		second := record("t", "b")
		assert.True(t, h.pipe.publish(context.Background(), first))
		assert.True(t, h.pipe.publish(context.Background(), second))

		_, _, offered := buf.state()
		require.Len(t, offered, 1)
		assert.Same(t, second, offered[0])
		assert.Equal(t, "buffer_full", h.sendEvents()[0].ErrorType)

		// Completing the first frees its slot.
		f.all()[0].complete(nil)
		third := record("t", "c")
		assert.True(t, h.pipe.publish(context.Background(), third))
		assert.Len(t, f.all()[0].records(), 2)
	})

	t.Run("blocking waits for a slot", func(t *testing.T) {
		t.Parallel()
		f := &fakeFactory{hold: true}
		h := newPipelineHarness(f, &fakeBuffer{})
		h.pipe.pending = semaphore.NewWeighted(1)

		require.True(t, h.pipe.publish(context.Background(), record("t", "a")))

		done := make(chan bool, 1)
		go func() {
			done <- h.pipe.publish(context.Background(), record("t", "b"))
		}()

		select {
		case <-done:
			t.Fatal("publish should wait for a pending slot")
		case <-time.After(20 * time.Millisecond):
		}

		f.all()[0].complete(nil)
		select {
		case ok := <-done:
			assert.True(t, ok)
		case <-time.After(time.Second):
			t.Fatal("publish did not resume")
		}
	})
}
