// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/oauth"
	"github.com/xmidt-org/eventor"
	"github.com/xmidt-org/kafkasink/metrics"
	"golang.org/x/sync/semaphore"
)

// Buffer is the upstream holding buffer records are drawn from.
type Buffer interface {
	// Release returns n bytes of reserved capacity once a record has been
	// delivered or dropped.
	Release(n int64)

	// Offer hands a record back for a later retry. Its capacity stays
	// reserved. Offer must not block for long and must not lose r.
	Offer(r *Record)
}

// Metrics is the keyed aggregator delivery counters are recorded into.
type Metrics interface {
	FindOrCreate(d metrics.Dimension) *metrics.Item
}

// Cluster fans records out to one Kafka cluster, one publisher per topic.
//
// Thread Safety: All methods are safe for concurrent use by multiple goroutines.
// Send may be called concurrently with itself, with Stop, and with the
// completions of earlier sends.
type Cluster struct {
	// --- STATIC CONFIGURATION (set before Start, immutable after) ---

	// Config identifies the Kafka cluster and carries its tuning. Required.
	Config ClusterConfig

	// WorkerName prefixes every publisher's client id.
	// Optional. Defaults to the host name.
	WorkerName string

	// ProxyClusterID is the cluster dimension of every metric.
	// Optional.
	ProxyClusterID string

	// Buffer receives released capacity and failed records. Required.
	Buffer Buffer

	// Metrics receives delivery counters.
	// Optional. If nil, an internal metrics.ItemSet is used; see MetricSet.
	Metrics Metrics

	// StartPolicy decides whether initialization failures are returned
	// from Start. Default: StartBestEffort.
	StartPolicy StartPolicy

	// TLS configures TLS encryption.
	// Optional. If nil, plaintext connections are used.
	TLS *tls.Config

	// AllowAutoTopicCreation lets publishers create missing topics.
	// Default: false.
	AllowAutoTopicCreation bool

	// CleanupTimeout sets the maximum time Stop waits for buffered records
	// to flush when its context has no deadline. Zero means no timeout.
	CleanupTimeout time.Duration

	// Logger is the logger instance (same interface as franz-go).
	// Optional. If nil, a no-op logger will be used.
	Logger kgo.Logger

	// InitialSendEventListeners are registered on first use of the cluster.
	// Optional.
	InitialSendEventListeners []func(*SendEvent)

	// --- INTERNAL FIELDS (not for user configuration) ---

	// clientFactory creates Kafka clients; overridden in tests.
	clientFactory clientFactory

	// now is the clock; overridden in tests.
	now func() time.Time

	setupOnce sync.Once
	logger    kgo.Logger
	buffer    Buffer
	metrics   Metrics

	// mu serializes Start and Stop and guards conn, pool and initErr.
	mu      sync.Mutex
	conn    kafkaClient
	pool    *producerPool
	initErr error

	state atomic.Int32
	pipe  atomic.Pointer[pipeline]

	sendEventListeners eventor.Eventor[func(*SendEvent)]
}

// setup fills defaults. Runs once, on first use of the cluster.
func (c *Cluster) setup() {
	if c.clientFactory == nil {
		c.clientFactory = defaultClientFactory
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.WorkerName == "" {
		if host, err := os.Hostname(); err == nil {
			c.WorkerName = host
		} else {
			c.WorkerName = "kafkasink"
		}
	}

	c.logger = orNop(c.Logger)

	c.buffer = c.Buffer
	if c.buffer == nil {
		c.buffer = nopBuffer{}
	}

	c.metrics = c.Metrics
	if c.metrics == nil {
		c.metrics = metrics.NewItemSet()
	}

	for _, listener := range c.InitialSendEventListeners {
		c.sendEventListeners.Add(listener)
	}

	c.pipe.Store(c.newPipeline(nil, DefaultTuning()))
}

// Start connects to the Kafka cluster and builds the publisher template.
//
// Any failure (invalid config or tuning, unreachable brokers, rejected
// credentials) is logged and kept in InitError. Under StartBestEffort the
// cluster is still Started, Start returns nil and every Send is dropped
// with a publisher creation failure. Under StartFailFast the error is
// returned and the cluster stays Idle.
//
// Returns ErrAlreadyStarted if the cluster was already started and
// ErrStopped once it has been stopped.
func (c *Cluster) Start(ctx context.Context) error {
	c.setupOnce.Do(c.setup)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.state.CompareAndSwap(int32(Idle), int32(Starting)) {
		if c.LifecycleState() == Stopped {
			return ErrStopped
		}
		return ErrAlreadyStarted
	}

	conn, tuning, template, err := c.connect(ctx)
	c.initErr = err
	if err != nil {
		c.logger.Log(kgo.LogLevelError, "cluster start failed",
			"cluster", c.Config.Name, "policy", c.StartPolicy.String(), "error", err)
		if c.StartPolicy == StartFailFast {
			c.state.Store(int32(Idle))
			return err
		}
	}

	if tuning.BatchingMaxMessages > 0 {
		c.logger.Log(kgo.LogLevelDebug, "batch record limit is not enforced by the client",
			"cluster", c.Config.Name, ParamBatchingMaxMessages, tuning.BatchingMaxMessages)
	}

	c.conn = conn
	c.pool = &producerPool{
		worker:      c.WorkerName,
		cluster:     c.Config.Name,
		template:    template,
		factory:     c.clientFactory,
		logger:      c.logger,
		unavailable: err,
	}
	c.pipe.Store(c.newPipeline(c.pool, tuning))
	c.state.Store(int32(Started))

	c.logger.Log(kgo.LogLevelInfo, "cluster started", "cluster", c.Config.Name)
	return nil
}

// connect validates the configuration, opens and pings the broker
// connection, and returns the publisher template. On error the returned
// tuning is still usable (defaults when parsing failed).
func (c *Cluster) connect(ctx context.Context) (kafkaClient, Tuning, []kgo.Opt, error) {
	if c.Buffer == nil {
		return nil, DefaultTuning(), nil, errors.Join(ErrValidation, fmt.Errorf("buffer is required"))
	}
	if err := c.Config.validate(); err != nil {
		return nil, DefaultTuning(), nil, err
	}

	tuning, err := ParseTuning(c.Config.Params)
	if err != nil {
		return nil, DefaultTuning(), nil, fmt.Errorf("cluster %q: %w", c.Config.Name, err)
	}

	// The connection is built from the full publisher template so that
	// settings the client rejects fail Start rather than every Send.
	template := append(c.connectionOpts(), tuning.opts()...)
	conn, err := c.clientFactory(template...)
	if err != nil {
		return nil, tuning, nil, errors.Join(ErrConnect, fmt.Errorf("cluster %q: %w", c.Config.Name, err))
	}
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, tuning, nil, errors.Join(ErrConnect, fmt.Errorf("cluster %q: %w", c.Config.Name, err))
	}

	return conn, tuning, template, nil
}

// connectionOpts converts the connection settings to franz-go client options.
func (c *Cluster) connectionOpts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.SeedBrokers(c.Config.brokers()...),
		kgo.WithLogger(c.logger),
	}

	if c.Config.Token != "" {
		opts = append(opts, kgo.SASL(oauth.Auth{Token: c.Config.Token}.AsMechanism()))
	}

	if c.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(c.TLS))
	}

	if c.AllowAutoTopicCreation {
		opts = append(opts, kgo.AllowAutoTopicCreation())
	}

	return opts
}

// opts converts the tuning to franz-go producer options.
func (t *Tuning) opts() []kgo.Opt {
	opts := []kgo.Opt{
		kgo.ProducerBatchCompression(t.Compression.codec()),
		kgo.RecordPartitioner(newSwitchingPartitioner(t.PartitionSwitchFrequency)),
	}
	opts = append(opts, t.Acks.opts()...)

	if t.EnableBatching {
		opts = append(opts, kgo.ProducerLinger(t.BatchingMaxPublishDelay))
	} else {
		opts = append(opts, kgo.ProducerLinger(0))
	}

	if t.BatchingMaxBytes > 0 {
		//nolint:gosec // G115: clamped to int32 range
		opts = append(opts, kgo.ProducerBatchMaxBytes(int32(min(t.BatchingMaxBytes, math.MaxInt32))))
	}

	if t.MaxPendingMessages > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(t.MaxPendingMessages))
	}

	if t.SendTimeout > 0 {
		opts = append(opts, kgo.RecordDeliveryTimeout(t.SendTimeout))
	}

	return opts
}

func (c *Cluster) newPipeline(pool *producerPool, t Tuning) *pipeline {
	p := &pipeline{
		proxyClusterID: c.ProxyClusterID,
		sinkID:         c.Config.Name,
		pool:           pool,
		buffer:         c.buffer,
		metrics:        c.metrics,
		logger:         c.logger,
		events:         &c.sendEventListeners,
		block:          t.BlockIfQueueFull,
		now:            c.now,
	}
	if t.MaxPendingMessagesAcrossPartitions > 0 {
		p.pending = semaphore.NewWeighted(int64(t.MaxPendingMessagesAcrossPartitions))
	}
	return p
}

// Stop flushes and closes every publisher, then the broker connection.
// Records still in flight complete through the normal path; those that
// cannot be delivered are offered back to the buffer.
//
// CleanupTimeout bounds the flush when ctx has no deadline. Safe to call
// multiple times, and before Start.
func (c *Cluster) Stop(ctx context.Context) {
	c.setupOnce.Do(c.setup)

	// The flush runs outside mu so InitError and PoolSize stay
	// responsive while publishers drain.
	c.mu.Lock()
	if LifecycleState(c.state.Swap(int32(Stopped))) == Stopped {
		c.mu.Unlock()
		return
	}
	pool, conn := c.pool, c.conn
	c.conn = nil
	c.mu.Unlock()

	c.logger.Log(kgo.LogLevelInfo, "stopping cluster, flushing publishers", "cluster", c.Config.Name)

	if c.CleanupTimeout > 0 {
		if _, hasDeadline := ctx.Deadline(); !hasDeadline {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.CleanupTimeout)
			defer cancel()
		}
	}

	if pool != nil {
		pool.close(ctx)
	}

	if conn != nil {
		conn.Close()
	}

	c.logger.Log(kgo.LogLevelInfo, "cluster stopped", "cluster", c.Config.Name)
}

// Send hands r to its topic's publisher and reports whether it was
// accepted for asynchronous delivery.
//
// true means the record is in flight: it will later either be released
// from the Buffer or offered back to it. false means it was dropped now
// (no topic, no publisher, or the cluster is not running); its capacity
// has already been released and a failure counted.
func (c *Cluster) Send(ctx context.Context, r *Record) bool {
	c.setupOnce.Do(c.setup)

	state := c.LifecycleState()
	p := c.pipe.Load()
	switch state {
	case Started:
		return p.publish(ctx, r)
	case Stopped:
		p.drop(r, r.Topic(), c.now(), ErrStopped)
	default:
		p.drop(r, r.Topic(), c.now(), ErrNotStarted)
	}
	return false
}

// LifecycleState returns the current state.
func (c *Cluster) LifecycleState() LifecycleState {
	return LifecycleState(c.state.Load())
}

// Name returns the cluster name, for log and metric correlation.
func (c *Cluster) Name() string {
	return c.Config.Name
}

// InitError returns the error recorded by the last Start, or nil.
func (c *Cluster) InitError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initErr
}

// PoolSize returns the number of live topic publishers.
func (c *Cluster) PoolSize() int {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()

	if pool == nil {
		return 0
	}
	return pool.size()
}

// MetricSet returns the metrics the cluster records into: Metrics when
// set, otherwise the internal ItemSet.
func (c *Cluster) MetricSet() Metrics {
	c.setupOnce.Do(c.setup)
	return c.metrics
}

// nopBuffer stands in for a missing Buffer so a misconfigured cluster
// fails in Start rather than panicking in Send.
type nopBuffer struct{}

func (nopBuffer) Release(int64) {}
func (nopBuffer) Offer(*Record) {}
