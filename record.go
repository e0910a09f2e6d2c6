// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import "time"

// Record is one buffered unit of ingested data: an opaque body plus string
// headers. The headers carry routing (HeaderTopic, HeaderMessageKey),
// timing (HeaderMsgTime, HeaderSourceTime) and metric dimensions
// (HeaderIngestionID).
//
// A Record handed to Cluster.Send is owned by the cluster until its
// completion: it is then either released from the upstream Buffer or
// offered back to it.
type Record struct {
	Body    []byte
	Headers map[string]string
}

// Topic returns the destination topic, or "" when the header is missing.
func (r *Record) Topic() string {
	return r.Headers[HeaderTopic]
}

// Key returns the routing key and whether one was set.
func (r *Record) Key() (string, bool) {
	k, ok := r.Headers[HeaderMessageKey]
	return k, ok
}

// IngestionID returns the ingestion stream identifier, or "".
func (r *Record) IngestionID() string {
	return r.Headers[HeaderIngestionID]
}

// Size is the number of body bytes the record holds in the upstream buffer.
func (r *Record) Size() int64 {
	return int64(len(r.Body))
}

// MsgTime returns the origin timestamp, or fallback when absent.
func (r *Record) MsgTime(fallback time.Time) time.Time {
	return headerMillis(r.Headers, HeaderMsgTime, fallback)
}

// SourceTime returns the node-arrival timestamp, falling back to MsgTime
// and then to fallback.
func (r *Record) SourceTime(fallback time.Time) time.Time {
	return headerMillis(r.Headers, HeaderSourceTime, r.MsgTime(fallback))
}
