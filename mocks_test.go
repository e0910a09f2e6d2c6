// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/stretchr/testify/mock"
	"github.com/twmb/franz-go/pkg/kgo"
)

// mockKafkaClient is a mock implementation of kafkaClient for testing.
type mockKafkaClient struct {
	mock.Mock
}

func (m *mockKafkaClient) Produce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) TryProduce(ctx context.Context, r *kgo.Record, cb func(*kgo.Record, error)) {
	m.Called(ctx, r, cb)
}

func (m *mockKafkaClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Flush(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockKafkaClient) Close() {
	m.Called()
}

// mockBuffer is a mock implementation of Buffer for testing.
type mockBuffer struct {
	mock.Mock
}

func (m *mockBuffer) Release(n int64) {
	m.Called(n)
}

func (m *mockBuffer) Offer(r *Record) {
	m.Called(r)
}

// fakeClient is a hand-rolled kafkaClient whose promises are completed by
// the test, either immediately or later via complete.
type fakeClient struct {
	mu       sync.Mutex
	opts     []kgo.Opt
	produced []*kgo.Record
	pending  []pendingProduce
	closed   int
	flushed  int

	// sendErr, when set, fails every record immediately.
	sendErr error
	// pingErr is returned from Ping.
	pingErr error
	// hold keeps promises pending until complete is called.
	hold bool
	// flushGate, when set, blocks Flush until it is closed.
	flushGate chan struct{}
}

func (f *fakeClient) produce(r *kgo.Record, promise func(*kgo.Record, error)) {
	f.mu.Lock()
	f.produced = append(f.produced, r)
	hold, err := f.hold, f.sendErr
	if hold {
		f.pending = append(f.pending, pendingProduce{r: r, promise: promise})
	}
	f.mu.Unlock()

	if !hold {
		go promise(r, err)
	}
}

func (f *fakeClient) Produce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.produce(r, promise)
}

func (f *fakeClient) TryProduce(_ context.Context, r *kgo.Record, promise func(*kgo.Record, error)) {
	f.produce(r, promise)
}

func (f *fakeClient) Ping(context.Context) error { return f.pingErr }

func (f *fakeClient) Flush(ctx context.Context) error {
	if f.flushGate != nil {
		select {
		case <-f.flushGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return nil
}

func (f *fakeClient) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

// complete resolves every held promise with err.
func (f *fakeClient) complete(err error) {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()

	for _, p := range pending {
		p.promise(p.r, err)
	}
}

type pendingProduce struct {
	r       *kgo.Record
	promise func(*kgo.Record, error)
}

func (f *fakeClient) records() []*kgo.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*kgo.Record(nil), f.produced...)
}

func (f *fakeClient) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeClient) flushCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushed
}

// fakeFactory hands out fakeClients and remembers them in creation order.
// The first client a started cluster creates is its broker connection.
type fakeFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	calls   atomic.Int64

	err     error
	pingErr error
	sendErr error
	hold    bool

	flushGate chan struct{}

	// checkOpts runs the options through kgo.NewClient so that settings
	// the real client rejects fail here too.
	checkOpts bool
}

func (f *fakeFactory) new(opts ...kgo.Opt) (kafkaClient, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.checkOpts {
		cl, err := kgo.NewClient(opts...)
		if err != nil {
			return nil, err
		}
		cl.Close()
	}
	c := &fakeClient{opts: opts, hold: f.hold, sendErr: f.sendErr, pingErr: f.pingErr, flushGate: f.flushGate}
	f.clients = append(f.clients, c)
	return c, nil
}

func (f *fakeFactory) all() []*fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeClient(nil), f.clients...)
}

// fakeBuffer records releases and offers.
type fakeBuffer struct {
	mu       sync.Mutex
	released int64
	releases int
	offered  []*Record
}

func (b *fakeBuffer) Release(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.released += n
	b.releases++
}

func (b *fakeBuffer) Offer(r *Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offered = append(b.offered, r)
}

func (b *fakeBuffer) state() (released int64, releases int, offered []*Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released, b.releases, append([]*Record(nil), b.offered...)
}
