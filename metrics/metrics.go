// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package metrics aggregates per-destination delivery counters for a sink
// and exposes them to Prometheus.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kafkasink"

// Dimension keys one Item.
type Dimension struct {
	// ClusterID is the ingestion proxy cluster the sink runs in.
	ClusterID string

	// SinkID is the broker cluster name.
	SinkID string

	// DestinationID is the topic.
	DestinationID string

	// IngestionID is the ingestion stream the record came from.
	IngestionID string
}

func (d Dimension) labelValues() []string {
	return []string{d.ClusterID, d.SinkID, d.DestinationID, d.IngestionID}
}

var labelNames = []string{"cluster_id", "sink_id", "destination_id", "ingestion_id"}

// Item accumulates counters for one Dimension. Values only grow.
// Durations are in milliseconds.
type Item struct {
	Dimension Dimension

	SuccessCount  atomic.Int64
	SuccessBytes  atomic.Int64
	FailCount     atomic.Int64
	FailBytes     atomic.Int64
	SinkDuration  atomic.Int64
	NodeDuration  atomic.Int64
	WholeDuration atomic.Int64
}

// RecordSuccess counts one delivered record of size bytes.
//
// sink is submission to completion, node is arrival on this node to
// completion and whole is ingestion to completion.
func (i *Item) RecordSuccess(size int64, sink, node, whole time.Duration) {
	i.SuccessCount.Add(1)
	i.SuccessBytes.Add(size)
	i.SinkDuration.Add(sink.Milliseconds())
	i.NodeDuration.Add(node.Milliseconds())
	i.WholeDuration.Add(whole.Milliseconds())
}

// RecordFailure counts one failed record of size bytes.
func (i *Item) RecordFailure(size int64) {
	i.FailCount.Add(1)
	i.FailBytes.Add(size)
}

// Snapshot is a point-in-time copy of an Item.
type Snapshot struct {
	Dimension     Dimension
	SuccessCount  int64
	SuccessBytes  int64
	FailCount     int64
	FailBytes     int64
	SinkDuration  int64
	NodeDuration  int64
	WholeDuration int64
}

// Snapshot copies the counters. Each counter is read atomically; the set
// as a whole is not.
func (i *Item) Snapshot() Snapshot {
	return Snapshot{
		Dimension:     i.Dimension,
		SuccessCount:  i.SuccessCount.Load(),
		SuccessBytes:  i.SuccessBytes.Load(),
		FailCount:     i.FailCount.Load(),
		FailBytes:     i.FailBytes.Load(),
		SinkDuration:  i.SinkDuration.Load(),
		NodeDuration:  i.NodeDuration.Load(),
		WholeDuration: i.WholeDuration.Load(),
	}
}

// ItemSet is a concurrent Dimension → Item map. It implements
// prometheus.Collector, exporting every counter of every Item as a
// labelled counter series.
type ItemSet struct {
	items sync.Map // Dimension → *Item
	count atomic.Int64

	successCount  *prometheus.Desc
	successBytes  *prometheus.Desc
	failCount     *prometheus.Desc
	failBytes     *prometheus.Desc
	sinkDuration  *prometheus.Desc
	nodeDuration  *prometheus.Desc
	wholeDuration *prometheus.Desc
}

// NewItemSet returns an empty ItemSet.
func NewItemSet() *ItemSet {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labelNames, nil)
	}
	return &ItemSet{
		successCount:  desc("send_success_total", "Records delivered to the broker."),
		successBytes:  desc("send_success_bytes_total", "Body bytes delivered to the broker."),
		failCount:     desc("send_fail_total", "Records that failed delivery."),
		failBytes:     desc("send_fail_bytes_total", "Body bytes that failed delivery."),
		sinkDuration:  desc("sink_duration_milliseconds_total", "Cumulative submission to acknowledgment time."),
		nodeDuration:  desc("node_duration_milliseconds_total", "Cumulative node arrival to acknowledgment time."),
		wholeDuration: desc("whole_duration_milliseconds_total", "Cumulative ingestion to acknowledgment time."),
	}
}

// FindOrCreate returns the Item for d, creating it on first use. Concurrent
// callers with the same d always receive the same Item.
func (s *ItemSet) FindOrCreate(d Dimension) *Item {
	if v, ok := s.items.Load(d); ok {
		return v.(*Item)
	}
	v, loaded := s.items.LoadOrStore(d, &Item{Dimension: d})
	if !loaded {
		s.count.Add(1)
	}
	return v.(*Item)
}

// Len returns the number of distinct dimensions observed.
func (s *ItemSet) Len() int {
	return int(s.count.Load())
}

// Snapshots copies every Item.
func (s *ItemSet) Snapshots() []Snapshot {
	var out []Snapshot
	s.items.Range(func(_, v any) bool {
		out = append(out, v.(*Item).Snapshot())
		return true
	})
	return out
}

// Describe implements prometheus.Collector.
func (s *ItemSet) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.successCount
	ch <- s.successBytes
	ch <- s.failCount
	ch <- s.failBytes
	ch <- s.sinkDuration
	ch <- s.nodeDuration
	ch <- s.wholeDuration
}

// Collect implements prometheus.Collector.
func (s *ItemSet) Collect(ch chan<- prometheus.Metric) {
	s.items.Range(func(_, v any) bool {
		snap := v.(*Item).Snapshot()
		labels := snap.Dimension.labelValues()
		counter := func(d *prometheus.Desc, value int64) {
			ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(value), labels...)
		}
		counter(s.successCount, snap.SuccessCount)
		counter(s.successBytes, snap.SuccessBytes)
		counter(s.failCount, snap.FailCount)
		counter(s.failBytes, snap.FailBytes)
		counter(s.sinkDuration, snap.SinkDuration)
		counter(s.nodeDuration, snap.NodeDuration)
		counter(s.wholeDuration, snap.WholeDuration)
		return true
	})
}

var _ prometheus.Collector = (*ItemSet)(nil)
