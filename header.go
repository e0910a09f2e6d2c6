// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"sort"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Record header keys understood by the cluster. All other headers are
// forwarded to Kafka untouched.
const (
	// HeaderTopic names the destination topic. Required.
	HeaderTopic = "topic"

	// HeaderMessageKey is the optional routing key. When present it becomes
	// the Kafka record key and pins the record to one partition.
	HeaderMessageKey = "messageKey"

	// HeaderMsgTime is the time the record entered the ingestion pipeline,
	// in epoch milliseconds.
	HeaderMsgTime = "msgTime"

	// HeaderSourceTime is the time the record entered this node, in epoch
	// milliseconds. Falls back to HeaderMsgTime.
	HeaderSourceTime = "sourceTime"

	// HeaderIngestionID identifies the ingestion stream the record belongs
	// to and is used as a metric dimension.
	HeaderIngestionID = "ingestionId"
)

// recordHeaders converts a header map into Kafka record headers. Keys are
// sorted so the wire order is deterministic.
func recordHeaders(headers map[string]string) []kgo.RecordHeader {
	if len(headers) == 0 {
		return nil
	}

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]kgo.RecordHeader, 0, len(keys))
	for _, k := range keys {
		out = append(out, kgo.RecordHeader{
			Key:   k,
			Value: []byte(headers[k]),
		})
	}
	return out
}

// headerMillis parses an epoch-millisecond header, returning fallback when
// the header is missing or malformed.
func headerMillis(headers map[string]string, key string, fallback time.Time) time.Time {
	v, ok := headers[key]
	if !ok || v == "" {
		return fallback
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return time.UnixMilli(ms)
}
