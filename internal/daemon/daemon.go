// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package daemon runs a kafkasink cluster fed from a line-oriented input.
package daemon

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/xmidt-org/kafkasink"
	"github.com/xmidt-org/kafkasink/buffer"
	"github.com/xmidt-org/kafkasink/internal/config"
	"github.com/xmidt-org/kafkasink/metrics"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedLine is returned by ParseLine for lines without the
// topic<TAB>key<TAB>payload layout.
var ErrMalformedLine = errors.New("malformed input line")

// drainPoll is how often Run checks for a drained buffer once the input
// has ended.
const drainPoll = 50 * time.Millisecond

// Daemon reads records from Input, holds them in a buffer.Queue and drains
// the queue into a kafkasink.Cluster.
type Daemon struct {
	Config config.Config
	Input  io.Reader
	Logger kgo.Logger

	// now is the clock stamped into record headers; overridden in tests.
	now func() time.Time
}

// Run blocks until the input is exhausted and every admitted record has
// been delivered or dropped, or until ctx is canceled. The cluster is
// stopped before Run returns.
func (d *Daemon) Run(ctx context.Context) error {
	logger := d.Logger
	if logger == nil {
		logger = kgo.BasicLogger(io.Discard, kgo.LogLevelNone, nil)
	}
	now := d.now
	if now == nil {
		now = time.Now
	}

	policy, err := d.Config.Policy()
	if err != nil {
		return err
	}

	q := buffer.New(d.Config.BufferBytes)
	set := metrics.NewItemSet()

	cluster := &kafkasink.Cluster{
		Config:                 d.Config.ClusterConfig(),
		WorkerName:             d.Config.Worker,
		ProxyClusterID:         d.Config.ProxyClusterID,
		Buffer:                 q,
		Metrics:                set,
		StartPolicy:            policy,
		AllowAutoTopicCreation: d.Config.AllowAutoTopicCreation,
		CleanupTimeout:         d.Config.CleanupTimeout,
		Logger:                 logger,
	}
	if d.Config.TLS {
		cluster.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if err := cluster.Start(ctx); err != nil {
		return fmt.Errorf("start cluster: %w", err)
	}
	defer cluster.Stop(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		set,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Scan cannot be interrupted, so intake runs outside the group and
	// ends with the input or with the next Admit after cancellation.
	intakeErr := make(chan error, 1)
	go func() {
		intakeErr <- d.intake(gctx, q, logger, now)
	}()

	// Drain. Records offered back after a failure come round again, paced
	// by the backoff so a full client does not spin.
	bo := newRetryBackoff()
	removeListener := cluster.AddSendEventListener(bo.observe)
	defer removeListener()

	g.Go(func() error {
		for {
			if err := bo.wait(gctx); err != nil {
				return nil
			}
			r, err := q.Poll(gctx)
			if err != nil {
				return nil
			}
			cluster.Send(gctx, r)
		}
	})

	// End of input: stop once nothing is outstanding.
	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-intakeErr:
			if err != nil {
				return err
			}
		}
		ticker := time.NewTicker(drainPoll)
		defer ticker.Stop()
		for {
			if q.Outstanding() == 0 {
				logger.Log(kgo.LogLevelInfo, "input drained")
				cancel()
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})

	if d.Config.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              d.Config.MetricsAddr,
			Handler:           NewRouter(cluster, registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Log(kgo.LogLevelInfo, "serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Log(kgo.LogLevelInfo, "shutting down", "outstanding", q.Outstanding(), "queued", q.Len())
	return err
}

// intake admits every well-formed input line into q. Malformed lines are
// logged and skipped.
func (d *Daemon) intake(ctx context.Context, q *buffer.Queue, logger kgo.Logger, now func() time.Time) error {
	if d.Input == nil {
		return nil
	}

	scanner := bufio.NewScanner(d.Input)
	scanner.Buffer(make([]byte, 0, 64*1024), d.Config.MaxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}

		r, err := ParseLine(text, d.Config.IngestionID, now())
		if err != nil {
			logger.Log(kgo.LogLevelWarn, "skipping input line", "line", line, "error", err)
			continue
		}

		if err := q.Admit(ctx, r); err != nil {
			if errors.Is(err, buffer.ErrTooLarge) {
				logger.Log(kgo.LogLevelWarn, "skipping input line", "line", line, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	logger.Log(kgo.LogLevelInfo, "input ended", "lines", line)
	return nil
}

// ParseLine builds a record from topic<TAB>key<TAB>payload. An empty key
// leaves the record unkeyed. The payload may itself contain tabs.
func ParseLine(line, ingestionID string, now time.Time) (*kafkasink.Record, error) {
	parts := strings.SplitN(line, "\t", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: want 3 tab separated fields, got %d", ErrMalformedLine, len(parts))
	}
	if parts[0] == "" {
		return nil, fmt.Errorf("%w: empty topic", ErrMalformedLine)
	}

	ms := strconv.FormatInt(now.UnixMilli(), 10)
	headers := map[string]string{
		kafkasink.HeaderTopic:      parts[0],
		kafkasink.HeaderMsgTime:    ms,
		kafkasink.HeaderSourceTime: ms,
	}
	if parts[1] != "" {
		headers[kafkasink.HeaderMessageKey] = parts[1]
	}
	if ingestionID != "" {
		headers[kafkasink.HeaderIngestionID] = ingestionID
	}

	return &kafkasink.Record{
		Body:    []byte(parts[2]),
		Headers: headers,
	}, nil
}

// healthChecker is the part of a Cluster the health endpoint reads.
type healthChecker interface {
	LifecycleState() kafkasink.LifecycleState
	InitError() error
}

// NewRouter serves /metrics from g and /healthz from c.
func NewRouter(c healthChecker, g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := c.LifecycleState()
		if state != kafkasink.Started {
			http.Error(w, state.String(), http.StatusServiceUnavailable)
			return
		}
		if err := c.InitError(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, "ok\n")
	})
	return r
}
