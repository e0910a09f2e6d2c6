// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"sync/atomic"

	"github.com/twmb/franz-go/pkg/kgo"
)

// switchingPartitioner routes keyed records by key hash, so one key always
// lands on one partition, and spreads unkeyed records round-robin, moving
// to the next partition after every `every` records.
type switchingPartitioner struct {
	every uint64
	keyed kgo.Partitioner
}

func newSwitchingPartitioner(every int) kgo.Partitioner {
	if every <= 0 {
		every = 1
	}
	return &switchingPartitioner{
		//nolint:gosec // G115: every is positive
		every: uint64(every),
		keyed: kgo.StickyKeyPartitioner(nil),
	}
}

func (p *switchingPartitioner) ForTopic(topic string) kgo.TopicPartitioner {
	return &switchingTopicPartitioner{
		every: p.every,
		keyed: p.keyed.ForTopic(topic),
	}
}

type switchingTopicPartitioner struct {
	every uint64
	keyed kgo.TopicPartitioner
	count atomic.Uint64
}

func (p *switchingTopicPartitioner) RequiresConsistency(r *kgo.Record) bool {
	return r.Key != nil
}

func (p *switchingTopicPartitioner) Partition(r *kgo.Record, n int) int {
	if n <= 0 {
		return 0
	}
	if r.Key != nil {
		return p.keyed.Partition(r, n)
	}

	c := p.count.Add(1) - 1
	//nolint:gosec // G115: modulo keeps the result below n
	return int((c / p.every) % uint64(n))
}
