// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package kafkasink delivers buffered records to the topics of one Apache
// Kafka cluster.
//
// # Overview
//
// A Cluster sits between an upstream holding buffer and Kafka. Each record
// names its topic in a header; the cluster lazily creates one franz-go
// client (a publisher) per topic from a shared template and submits the
// record asynchronously. When the broker answers, the record is either
// released from the buffer and counted as a success, or offered back to
// the buffer for a later retry and counted as a failure.
//
// # Quick Start
//
//	q := buffer.New(64 << 20)
//
//	cluster := &kafkasink.Cluster{
//	    Config: kafkasink.ClusterConfig{
//	        Name: "primary",
//	        URL:  "kafka://localhost:9092",
//	        Params: map[string]string{
//	            kafkasink.ParamCompressionType: "LZ4",
//	        },
//	    },
//	    Buffer: q,
//	}
//	if err := cluster.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cluster.Stop(context.Background())
//
//	for {
//	    r, err := q.Poll(ctx)
//	    if err != nil {
//	        return
//	    }
//	    cluster.Send(ctx, r)
//	}
//
// # Records
//
// A Record is a body plus string headers. HeaderTopic is required.
// HeaderMessageKey, when present, becomes the Kafka key and pins the record
// to one partition; unkeyed records rotate partitions every
// PartitionSwitchFrequency records. HeaderMsgTime and HeaderSourceTime feed
// the duration counters and HeaderIngestionID is a metric dimension. Every
// header is forwarded to Kafka.
//
// # Outcomes
//
// Every record handed to Send ends exactly once as one of:
//
//   - delivered: Buffer.Release(size) and a success count;
//   - failed after submission: Buffer.Offer(record), capacity still held,
//     and a failure count;
//   - dropped: Send returned false, Buffer.Release(size) and a failure count.
//
// Records are dropped when they carry no topic, when no publisher can be
// created for their topic, or when the cluster is not running.
//
// # Start Policy
//
// By default Start is best effort: a bad configuration or an unreachable
// cluster is logged and recorded in InitError, the cluster is still marked
// Started, and every Send is dropped. StartFailFast returns the error
// instead and leaves the cluster Idle.
//
// # Observability
//
// Counters are kept per (proxy cluster, sink, topic, ingestion id) in a
// metrics.ItemSet, which is a prometheus.Collector. Listeners registered
// with AddSendEventListener see every completion and drop:
//
//	cluster.AddSendEventListener(func(e *kafkasink.SendEvent) {
//	    if e.Error != nil {
//	        errorsByType.WithLabelValues(e.Topic, e.ErrorType).Inc()
//	    }
//	})
//
// Logging uses franz-go's kgo.Logger interface.
//
// # Thread Safety
//
// Cluster is safe for concurrent use. Send never waits for a broker
// acknowledgment; with BlockIfQueueFull it may wait for room in the
// publisher's queue.
package kafkasink
