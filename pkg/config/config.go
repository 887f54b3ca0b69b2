// Package config provides configuration loading for the otelship pipeline.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds the full pipeline configuration.
type Config struct {
	// Enabled turns the pipeline on. When false every ingestion call is a
	// no-op, so instrumented code needs no conditional logic.
	Enabled bool `koanf:"enabled"`

	// ServiceName is attached as the service.name resource attribute to
	// every exported record.
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`

	// Resource holds additional resource attributes (key -> value).
	Resource map[string]string `koanf:"resource"`

	// Endpoint is the collector address: host:port for grpc, a base URL
	// (or host:port) for http/protobuf.
	Endpoint string `koanf:"endpoint"`

	// Protocol selects the export transport: "grpc" or "http/protobuf".
	Protocol string `koanf:"protocol"`

	// Insecure disables TLS. Only allowed for local endpoints.
	Insecure bool `koanf:"insecure"`

	// BatchSize is the maximum number of records per exported batch.
	BatchSize int `koanf:"batch_size"`

	// FlushInterval is the periodic export trigger.
	FlushInterval Duration `koanf:"flush_interval"`

	// BufferCapacity bounds each kind's record buffer.
	BufferCapacity int `koanf:"buffer_capacity"`

	// OverflowPolicy is "drop_oldest" (default) or "block".
	OverflowPolicy string `koanf:"overflow_policy"`

	// MaxRetries is the number of retries after the first export attempt.
	MaxRetries int `koanf:"max_retries"`

	BackoffInitial    Duration `koanf:"backoff_initial"`
	BackoffMax        Duration `koanf:"backoff_max"`
	BackoffMultiplier float64  `koanf:"backoff_multiplier"`
	BackoffJitter     float64  `koanf:"backoff_jitter"`

	// ExportTimeout bounds a single transport call.
	ExportTimeout Duration `koanf:"export_timeout"`

	// ShutdownTimeout bounds the final flush on shutdown.
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`

	Logging LoggingConfig `koanf:"logging"`
}

// LoggingConfig controls the pipeline's internal logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// NewDefaultConfig returns production-ready defaults for a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:           true,
		ServiceName:       "otelship",
		ServiceVersion:    "0.1.0",
		Endpoint:          "localhost:4317",
		Protocol:          "grpc",
		Insecure:          true,
		BatchSize:         512,
		FlushInterval:     Duration(5 * time.Second),
		BufferCapacity:    2048,
		OverflowPolicy:    "drop_oldest",
		MaxRetries:        3,
		BackoffInitial:    Duration(500 * time.Millisecond),
		BackoffMax:        Duration(30 * time.Second),
		BackoffMultiplier: 2.0,
		BackoffJitter:     0.2,
		ExportTimeout:     Duration(10 * time.Second),
		ShutdownTimeout:   Duration(5 * time.Second),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// applyDefaults fills unset fields from NewDefaultConfig. Enabled and
// Insecure keep their zero values: both are deliberate choices. So do
// MaxRetries and BackoffJitter, where zero is a valid explicit setting;
// the loader defaults those only when the key is absent.
func applyDefaults(cfg *Config) {
	def := NewDefaultConfig()

	if cfg.ServiceName == "" {
		cfg.ServiceName = def.ServiceName
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = def.ServiceVersion
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = def.Endpoint
	}
	if cfg.Protocol == "" {
		cfg.Protocol = def.Protocol
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferCapacity == 0 {
		cfg.BufferCapacity = def.BufferCapacity
	}
	if cfg.OverflowPolicy == "" {
		cfg.OverflowPolicy = def.OverflowPolicy
	}
	if cfg.BackoffInitial == 0 {
		cfg.BackoffInitial = def.BackoffInitial
	}
	if cfg.BackoffMax == 0 {
		cfg.BackoffMax = def.BackoffMax
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = def.BackoffMultiplier
	}
	if cfg.ExportTimeout == 0 {
		cfg.ExportTimeout = def.ExportTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
}

// Validate checks configuration for errors.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // No validation needed if disabled
	}

	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when the pipeline is enabled")
	}
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when the pipeline is enabled")
	}
	if c.Protocol != "grpc" && c.Protocol != "http/protobuf" {
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}

	// Security: prevent insecure connections to remote endpoints
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)")
	}

	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BufferCapacity < c.BatchSize {
		return fmt.Errorf("buffer_capacity (%d) must be at least batch_size (%d)", c.BufferCapacity, c.BatchSize)
	}
	if c.OverflowPolicy != "drop_oldest" && c.OverflowPolicy != "block" {
		return fmt.Errorf("overflow_policy must be drop_oldest or block, got %q", c.OverflowPolicy)
	}
	if c.FlushInterval.Duration() <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1, got %f", c.BackoffMultiplier)
	}
	if c.BackoffJitter < 0 || c.BackoffJitter > 1 {
		return fmt.Errorf("backoff_jitter must be between 0 and 1, got %f", c.BackoffJitter)
	}
	if c.BackoffInitial.Duration() <= 0 || c.BackoffMax.Duration() < c.BackoffInitial.Duration() {
		return fmt.Errorf("backoff_initial must be positive and backoff_max must not be smaller")
	}
	if c.ExportTimeout.Duration() <= 0 {
		return fmt.Errorf("export_timeout must be positive")
	}
	if c.ShutdownTimeout.Duration() <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return c.Logging.Validate()
}

// Validate checks the logging section.
func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Level)
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Format)
	}
	return nil
}

// isLocalEndpoint checks if the endpoint is a local address.
func (c *Config) isLocalEndpoint() bool {
	host := c.Endpoint
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")

	// Handle IPv6 addresses (may be bracketed like [::1]:4317)
	if strings.HasPrefix(host, "[") {
		if idx := strings.Index(host, "]:"); idx != -1 {
			host = host[1:idx]
		} else if strings.HasSuffix(host, "]") {
			host = host[1 : len(host)-1]
		}
	} else if strings.Count(host, ":") == 1 {
		if idx := strings.LastIndex(host, ":"); idx != -1 {
			host = host[:idx]
		}
	}

	return host == "localhost" ||
		host == "127.0.0.1" ||
		host == "::1" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(host, "::1")
}
