// SPDX-FileCopyrightText: 2025 Comcast Cable Communications Management, LLC
// SPDX-License-Identifier: Apache-2.0

// Package config loads the kafkasink daemon configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/xmidt-org/kafkasink"
	"gopkg.in/yaml.v3"
)

// Default values applied by Load.
const (
	DefaultBufferBytes    = 64 << 20
	DefaultMetricsAddr    = ":9090"
	DefaultIngestionID    = "stdin"
	DefaultCleanupTimeout = 10 * time.Second
	DefaultMaxLineBytes   = 1 << 20
)

// Config is the daemon configuration.
type Config struct {
	// Worker prefixes publisher client ids. Defaults to the host name.
	Worker string `yaml:"worker"`

	// ProxyClusterID is the cluster dimension of every metric.
	ProxyClusterID string `yaml:"proxyClusterId"`

	// IngestionID is stamped on every record read from the input.
	IngestionID string `yaml:"ingestionId"`

	// BufferBytes is the capacity of the holding buffer.
	BufferBytes int64 `yaml:"bufferBytes"`

	// MaxLineBytes bounds one input line.
	MaxLineBytes int `yaml:"maxLineBytes"`

	// StartPolicy is "best-effort" (default) or "fail-fast".
	StartPolicy string `yaml:"startPolicy"`

	// CleanupTimeout bounds the final flush on shutdown.
	CleanupTimeout time.Duration `yaml:"cleanupTimeout"`

	// MetricsAddr is the listen address of the metrics and health
	// endpoints. Empty disables them.
	MetricsAddr string `yaml:"metricsAddr"`

	// AllowAutoTopicCreation lets publishers create missing topics.
	AllowAutoTopicCreation bool `yaml:"allowAutoTopicCreation"`

	// TLS enables TLS to the brokers.
	TLS bool `yaml:"tls"`

	Cluster Cluster `yaml:"cluster"`
}

// Cluster is the Kafka cluster section.
type Cluster struct {
	Name   string            `yaml:"name"`
	URL    string            `yaml:"url"`
	Token  string            `yaml:"token"`
	Params map[string]string `yaml:"params"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Cluster.Token == "" {
		cfg.Cluster.Token = os.Getenv("KAFKASINK_TOKEN")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration defaults.
func Default() Config {
	return Config{
		IngestionID:    DefaultIngestionID,
		BufferBytes:    DefaultBufferBytes,
		MaxLineBytes:   DefaultMaxLineBytes,
		StartPolicy:    "best-effort",
		CleanupTimeout: DefaultCleanupTimeout,
		MetricsAddr:    DefaultMetricsAddr,
	}
}

// Validate checks the fields the daemon cannot run without. Tuning
// parameters are left to the cluster, which reports them at start.
func (c *Config) Validate() error {
	var errs []error
	if c.Cluster.Name == "" {
		errs = append(errs, errors.New("cluster.name is required"))
	}
	if strings.TrimSpace(c.Cluster.URL) == "" {
		errs = append(errs, errors.New("cluster.url is required"))
	}
	if c.BufferBytes <= 0 {
		errs = append(errs, errors.New("bufferBytes must be positive"))
	}
	if c.MaxLineBytes <= 0 {
		errs = append(errs, errors.New("maxLineBytes must be positive"))
	}
	if c.CleanupTimeout < 0 {
		errs = append(errs, errors.New("cleanupTimeout must not be negative"))
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Policy converts StartPolicy.
func (c *Config) Policy() (kafkasink.StartPolicy, error) {
	switch strings.ToLower(c.StartPolicy) {
	case "", "best-effort":
		return kafkasink.StartBestEffort, nil
	case "fail-fast":
		return kafkasink.StartFailFast, nil
	}
	return kafkasink.StartBestEffort, fmt.Errorf("startPolicy %q is invalid: must be 'best-effort' or 'fail-fast'", c.StartPolicy)
}

// ClusterConfig converts the cluster section.
func (c *Config) ClusterConfig() kafkasink.ClusterConfig {
	return kafkasink.ClusterConfig{
		Name:   c.Cluster.Name,
		URL:    c.Cluster.URL,
		Token:  c.Cluster.Token,
		Params: c.Cluster.Params,
	}
}
