// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
)

// producerPool caches one publisher per topic.
//
// Lookups are lock-free. Creation runs without any pool lock; concurrent
// creators for one topic race on LoadOrStore and every loser closes its
// candidate, so at most one publisher per topic is ever live.
type producerPool struct {
	worker  string
	cluster string

	// template is the option set every publisher is built from.
	template []kgo.Opt
	factory  clientFactory
	logger   kgo.Logger

	// unavailable, when set, fails every creation. It holds the reason the
	// cluster could not be initialized.
	unavailable error

	// mu orders inserts against close. Held shared only around the insert
	// itself, never across factory calls.
	mu     sync.RWMutex
	closed bool

	publishers sync.Map // topic → kafkaClient
	count      atomic.Int64
}

// getOrCreate returns the topic's publisher, creating it on first use.
func (p *producerPool) getOrCreate(topic string) (kafkaClient, error) {
	if v, ok := p.publishers.Load(topic); ok {
		return v.(kafkaClient), nil
	}

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrStopped
	}

	if p.unavailable != nil {
		return nil, errors.Join(ErrPublisherCreate, fmt.Errorf("topic %q: %w", topic, p.unavailable))
	}

	name := p.publisherName(topic)
	p.logger.Log(kgo.LogLevelInfo, "creating publisher", "topic", topic, "name", name)

	opts := append(slices.Clip(p.template), kgo.DefaultProduceTopic(topic), kgo.ClientID(name))
	candidate, err := p.factory(opts...)
	if err != nil {
		p.logger.Log(kgo.LogLevelError, "create publisher failed", "topic", topic, "error", err)
		return nil, errors.Join(ErrPublisherCreate, fmt.Errorf("topic %q: %w", topic, err))
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		candidate.Close()
		return nil, ErrStopped
	}
	winner, loaded := p.publishers.LoadOrStore(topic, candidate)
	if !loaded {
		p.count.Add(1)
	}
	p.mu.RUnlock()

	if loaded {
		candidate.Close()
		p.logger.Log(kgo.LogLevelInfo, "closed redundant publisher", "topic", topic, "name", name)
		return winner.(kafkaClient), nil
	}

	p.logger.Log(kgo.LogLevelInfo, "created publisher", "topic", topic, "name", name)
	return candidate, nil
}

// publisherName returns a client id unique across processes sharing a
// worker name.
func (p *producerPool) publisherName(topic string) string {
	return p.worker + "-" + p.cluster + "-" + topic + "-" + strconv.FormatInt(rand.Int64(), 10)
}

// size returns the number of live publishers.
func (p *producerPool) size() int {
	return int(p.count.Load())
}

// close flushes and closes every publisher. Later getOrCreate calls return
// ErrStopped. Safe to call more than once.
func (p *producerPool) close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.publishers.Range(func(k, v any) bool {
		topic := k.(string)
		pub := v.(kafkaClient)

		if err := pub.Flush(ctx); err != nil {
			p.logger.Log(kgo.LogLevelWarn, "flush incomplete during shutdown", "topic", topic, "error", err.Error())
		}
		pub.Close()

		p.publishers.Delete(k)
		p.count.Add(-1)
		p.logger.Log(kgo.LogLevelInfo, "closed publisher", "topic", topic)
		return true
	})
}
