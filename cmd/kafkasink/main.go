// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Command kafkasink delivers newline-delimited records from stdin to Kafka.
//
// Usage:
//
//	kafkasink run --config sink.yaml < records.tsv
//	kafkasink version
package main

import (
	"os"

	"github.com/xmidt-org/kafkasink/cmd/kafkasink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
