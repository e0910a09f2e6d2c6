// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package kafkasink

import "github.com/twmb/franz-go/pkg/kgo"

// Compression specifies the batch compression algorithm.
type Compression string

const (
	// CompressionLZ4 uses LZ4 compression.
	CompressionLZ4 Compression = "LZ4"

	// CompressionNone disables compression.
	CompressionNone Compression = "NONE"

	// CompressionZlib uses DEFLATE. Kafka has no raw zlib codec, so it is
	// written as gzip, which wraps the same DEFLATE stream.
	CompressionZlib Compression = "ZLIB"

	// CompressionZstd uses Zstandard compression.
	CompressionZstd Compression = "ZSTD"

	// CompressionSnappy uses Snappy compression.
	CompressionSnappy Compression = "SNAPPY"
)

var compressionTypes map[string]Compression

func init() {
	list := []Compression{
		CompressionLZ4,
		CompressionNone,
		CompressionZlib,
		CompressionZstd,
		CompressionSnappy,
	}

	compressionTypes = make(map[string]Compression, len(list))
	for _, c := range list {
		compressionTypes[string(c)] = c
	}
}

// ParseCompression maps a configured codec name onto a Compression.
// Names are matched exactly; anything unrecognized, including the empty
// string, yields CompressionNone.
func ParseCompression(name string) Compression {
	if c, ok := compressionTypes[name]; ok {
		return c
	}
	return CompressionNone
}

// codec returns the franz-go codec for c.
func (c Compression) codec() kgo.CompressionCodec {
	switch c {
	case CompressionLZ4:
		return kgo.Lz4Compression()
	case CompressionZlib:
		return kgo.GzipCompression()
	case CompressionZstd:
		return kgo.ZstdCompression()
	case CompressionSnappy:
		return kgo.SnappyCompression()
	default:
		return kgo.NoCompression()
	}
}
