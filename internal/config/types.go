package config

import (
	"time"

	"authflow/pkg/oauth"
)

// Storage backend types.
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageRedis  = "redis"
)

// Config is the top-level configuration structure for authflow.
type Config struct {
	// DefaultClient names the client used when --client is not given.
	DefaultClient string `yaml:"defaultClient,omitempty"`

	// Clients holds the client registrations by name.
	Clients map[string]oauth.Config `yaml:"clients,omitempty"`

	Storage   StorageConfig   `yaml:"storage"`
	Timeouts  TimeoutsConfig  `yaml:"timeouts"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty"`
}

// StorageConfig selects and configures the session backend.
type StorageConfig struct {
	Type string `yaml:"type" validate:"oneof=memory file redis"`

	// Dir is the session directory of the file backend.
	Dir string `yaml:"dir,omitempty"`

	// Watch reloads session files changed by other processes.
	Watch bool `yaml:"watch,omitempty"`

	RedisURL       string `yaml:"redisURL,omitempty" validate:"required_if=Type redis"`
	RedisKeyPrefix string `yaml:"redisKeyPrefix,omitempty"`
}

// TimeoutsConfig bounds the network and interactive steps.
type TimeoutsConfig struct {
	HTTP  time.Duration `yaml:"http,omitempty" validate:"gte=0"`
	Load  time.Duration `yaml:"load,omitempty" validate:"gte=0"`
	Login time.Duration `yaml:"login,omitempty" validate:"gte=0"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format,omitempty" validate:"omitempty,oneof=text json"`
}

// TelemetryConfig exports traces and metrics of a command run.
type TelemetryConfig struct {
	// TraceEndpoint is the OTLP/HTTP collector URL, e.g.
	// http://localhost:4318. Tracing is off when empty.
	TraceEndpoint string `yaml:"traceEndpoint,omitempty" validate:"omitempty,url"`

	// MetricsFile receives the Prometheus metrics in text format when the
	// command exits, for the node_exporter textfile collector.
	MetricsFile string `yaml:"metricsFile,omitempty"`
}
