// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/xmidt-org/kafkasink/internal/config"
	"github.com/xmidt-org/kafkasink/internal/daemon"
)

var (
	configFlag      string
	metricsAddrFlag string
	workerFlag      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver records from stdin",
	Long: `Deliver records read from stdin until the input ends and every
record has been acknowledged, or until SIGINT/SIGTERM.

Examples:
  kafkasink run --config sink.yaml < records.tsv
  producer | kafkasink run --config sink.yaml --metrics-addr :9100`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&configFlag, "config", "c", "sink.yaml", "Path to the configuration file")
	runCmd.Flags().StringVar(&metricsAddrFlag, "metrics-addr", "", "Override metricsAddr from the configuration file")
	runCmd.Flags().StringVar(&workerFlag, "worker", "", "Override worker from the configuration file")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddrFlag
	}
	if workerFlag != "" {
		cfg.Worker = workerFlag
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := &daemon.Daemon{
		Config: cfg,
		Input:  cmd.InOrStdin(),
		Logger: logger,
	}
	return d.Run(ctx)
}
