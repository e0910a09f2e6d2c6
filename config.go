// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Tuning parameter names accepted in ClusterConfig.Params.
const (
	ParamEnableBatching                     = "enableBatching"
	ParamBatchingMaxBytes                   = "batchingMaxBytes"
	ParamBatchingMaxMessages                = "batchingMaxMessages"
	ParamBatchingMaxPublishDelay            = "batchingMaxPublishDelay"
	ParamMaxPendingMessages                 = "maxPendingMessages"
	ParamMaxPendingMessagesAcrossPartitions = "maxPendingMessagesAcrossPartitions"
	ParamSendTimeout                        = "sendTimeout"
	ParamCompressionType                    = "compressionType"
	ParamBlockIfQueueFull                   = "blockIfQueueFull"
	ParamPartitionSwitchFrequency           = "roundRobinRouterBatchingPartitionSwitchFrequency"
	ParamAcks                               = "acks"
)

// ClusterConfig identifies one Kafka deployment and carries its tuning.
// It is read once by Start and never modified by the cluster.
type ClusterConfig struct {
	// Name is the cluster name. It is the sink dimension of every metric
	// and part of every publisher's client id. Required.
	Name string

	// URL is a comma-separated list of seed brokers. Each entry may carry a
	// scheme prefix ("kafka://host:9092"), which is ignored. Required.
	URL string

	// Token is a bearer token presented with SASL OAUTHBEARER.
	// Optional. Empty means no authentication.
	Token string

	// Params holds named tuning values; see the Param* constants.
	// Missing keys take the defaults from DefaultTuning.
	Params map[string]string
}

// brokers splits URL into seed addresses.
func (c *ClusterConfig) brokers() []string {
	var out []string
	for _, b := range strings.Split(c.URL, ",") {
		b = strings.TrimSpace(b)
		if i := strings.Index(b, "://"); i >= 0 {
			b = b[i+3:]
		}
		b = strings.TrimSuffix(b, "/")
		if b != "" {
			out = append(out, b)
		}
	}
	return out
}

// validate validates the ClusterConfig.
func (c *ClusterConfig) validate() error {
	if c.Name == "" {
		return errors.Join(ErrValidation, fmt.Errorf("cluster name is required"))
	}
	if len(c.brokers()) == 0 {
		return errors.Join(ErrValidation, fmt.Errorf("cluster %q: broker url is required", c.Name))
	}
	return nil
}

// Tuning is the typed form of ClusterConfig.Params. It becomes the shared
// template every per-topic publisher is created from.
type Tuning struct {
	// EnableBatching allows records to linger for BatchingMaxPublishDelay.
	// When false records are sent as soon as possible.
	EnableBatching bool

	// BatchingMaxBytes caps the size of one record batch.
	BatchingMaxBytes int

	// BatchingMaxMessages caps records per batch. franz-go bounds batches
	// by bytes only, so this value is validated and reported but not
	// enforced by the client.
	BatchingMaxMessages int

	// BatchingMaxPublishDelay is the linger applied when batching is on.
	BatchingMaxPublishDelay time.Duration

	// MaxPendingMessages bounds buffered records per topic publisher.
	MaxPendingMessages int

	// MaxPendingMessagesAcrossPartitions bounds in-flight records across
	// every publisher of the cluster.
	MaxPendingMessagesAcrossPartitions int

	// SendTimeout bounds delivery of one record. Zero disables it.
	SendTimeout time.Duration

	// Compression is the batch codec.
	Compression Compression

	// BlockIfQueueFull makes Send wait for room in a full queue. When
	// false a full queue fails the record asynchronously.
	BlockIfQueueFull bool

	// PartitionSwitchFrequency is how many unkeyed records go to one
	// partition before moving to the next.
	PartitionSwitchFrequency int

	// Acks is the acknowledgment level required from the brokers.
	Acks Acks
}

// DefaultTuning returns the tuning used for absent parameters.
func DefaultTuning() Tuning {
	return Tuning{
		EnableBatching:                     true,
		BatchingMaxBytes:                   1000012,
		BatchingMaxMessages:                3000,
		BatchingMaxPublishDelay:            time.Millisecond,
		MaxPendingMessages:                 1000,
		MaxPendingMessagesAcrossPartitions: 50000,
		SendTimeout:                        0,
		Compression:                        CompressionNone,
		BlockIfQueueFull:                   true,
		PartitionSwitchFrequency:           10,
		Acks:                               AcksAll,
	}
}

// ParseTuning builds a Tuning from named parameters on top of
// DefaultTuning. Unknown keys are ignored. Durations are whole
// milliseconds. Malformed values return an error wrapping ErrValidation.
func ParseTuning(params map[string]string) (Tuning, error) {
	t := DefaultTuning()
	p := paramParser{params: params}

	t.EnableBatching = p.boolean(ParamEnableBatching, t.EnableBatching)
	t.BatchingMaxBytes = p.integer(ParamBatchingMaxBytes, t.BatchingMaxBytes)
	t.BatchingMaxMessages = p.integer(ParamBatchingMaxMessages, t.BatchingMaxMessages)
	t.BatchingMaxPublishDelay = p.millis(ParamBatchingMaxPublishDelay, t.BatchingMaxPublishDelay)
	t.MaxPendingMessages = p.integer(ParamMaxPendingMessages, t.MaxPendingMessages)
	t.MaxPendingMessagesAcrossPartitions = p.integer(ParamMaxPendingMessagesAcrossPartitions, t.MaxPendingMessagesAcrossPartitions)
	t.SendTimeout = p.millis(ParamSendTimeout, t.SendTimeout)
	t.BlockIfQueueFull = p.boolean(ParamBlockIfQueueFull, t.BlockIfQueueFull)
	t.PartitionSwitchFrequency = p.integer(ParamPartitionSwitchFrequency, t.PartitionSwitchFrequency)

	if v, ok := params[ParamCompressionType]; ok {
		t.Compression = ParseCompression(v)
	}
	if v, ok := params[ParamAcks]; ok && v != "" {
		t.Acks = Acks(v)
	}

	if p.err != nil {
		return Tuning{}, p.err
	}
	if err := t.validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// minBatchBytes is the smallest batch size the client accepts.
const minBatchBytes = 1 << 10

// validate validates the Tuning.
func (t *Tuning) validate() error {
	if t.BatchingMaxBytes < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamBatchingMaxBytes))
	}
	if t.BatchingMaxBytes > 0 && t.BatchingMaxBytes < minBatchBytes {
		return errors.Join(ErrValidation, fmt.Errorf("%s must be at least %d", ParamBatchingMaxBytes, minBatchBytes))
	}
	if t.BatchingMaxMessages < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamBatchingMaxMessages))
	}
	if t.BatchingMaxPublishDelay < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamBatchingMaxPublishDelay))
	}
	if t.MaxPendingMessages < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamMaxPendingMessages))
	}
	if t.MaxPendingMessagesAcrossPartitions < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamMaxPendingMessagesAcrossPartitions))
	}
	if t.SendTimeout < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamSendTimeout))
	}
	if t.PartitionSwitchFrequency < 0 {
		return errors.Join(ErrValidation, fmt.Errorf("%s must not be negative", ParamPartitionSwitchFrequency))
	}
	return validateAcks(t.Acks)
}

// paramParser reads typed values out of a string map, keeping the first
// error it sees.
type paramParser struct {
	params map[string]string
	err    error
}

func (p *paramParser) lookup(key string) (string, bool) {
	v, ok := p.params[key]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (p *paramParser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = errors.Join(ErrValidation, fmt.Errorf("parameter %s=%q: %w", key, value, err))
	}
}

func (p *paramParser) integer(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return n
}

func (p *paramParser) boolean(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return b
}

func (p *paramParser) millis(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, v, err)
		return def
	}
	return time.Duration(n) * time.Millisecond
}
