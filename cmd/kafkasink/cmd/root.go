// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package cmd holds the kafkasink cobra commands.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"
)

var logLevelFlag string

var rootCmd = &cobra.Command{
	Use:   "kafkasink",
	Short: "Deliver buffered records to Kafka topics",
	Long: `kafkasink reads records from stdin, one per line as
topic<TAB>key<TAB>payload, holds them in a bounded buffer and delivers them
to the topics of one Kafka cluster.

Use "kafkasink [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "info",
		"Log level: debug, info, warn, error, none")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a franz-go basic logger writing to stderr.
func newLogger() (kgo.Logger, error) {
	level, err := parseLogLevel(logLevelFlag)
	if err != nil {
		return nil, err
	}
	return kgo.BasicLogger(os.Stderr, level, nil), nil
}

func parseLogLevel(s string) (kgo.LogLevel, error) {
	switch strings.ToLower(s) {
	case "debug":
		return kgo.LogLevelDebug, nil
	case "", "info":
		return kgo.LogLevelInfo, nil
	case "warn", "warning":
		return kgo.LogLevelWarn, nil
	case "error":
		return kgo.LogLevelError, nil
	case "none", "off":
		return kgo.LogLevelNone, nil
	}
	return kgo.LogLevelNone, fmt.Errorf("invalid log level %q", s)
}
