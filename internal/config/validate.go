package config

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConfigError wraps every problem found in a configuration. It is fatal:
// the runner exits before the first cycle.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return "invalid configuration: " + e.Err.Error()
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Fields returns the names of every invalid field.
func (e *ConfigError) Fields() []string {
	var fields []string
	collect(e.Err, &fields)
	return fields
}

func collect(err error, fields *[]string) {
	var ve ValidationError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			collect(e, fields)
		}
		return
	}
	if errors.As(err, &ve) {
		*fields = append(*fields, ve.Field)
	}
}

// Validate checks the configuration for errors and inconsistencies.
// It reports every problem at once as a *ConfigError, or returns nil.
func Validate(cfg *Config) error {
	var errs []error
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.AppName == "" {
		add("app_name", "is required")
	}
	if cfg.TestName == "" {
		add("name", "is required")
	}
	if _, err := cfg.Argv(); err != nil {
		add("test_cmd", "probe command is required")
	}

	if cfg.Interval <= 0 {
		add("interval", "must be positive (got %v)", cfg.Interval)
	}
	if cfg.Timeout <= 0 {
		add("timeout", "must be positive (got %v)", cfg.Timeout)
	}
	if cfg.Interval > 0 && cfg.Timeout > cfg.Interval {
		add("timeout", "must not exceed interval (timeout %v > interval %v)", cfg.Timeout, cfg.Interval)
	}

	switch cfg.Strategy {
	case "watchdog", "poll":
	default:
		add("strategy", "must be 'watchdog' or 'poll' (got %q)", cfg.Strategy)
	}
	if cfg.MaxCycles < 0 {
		add("max_cycles", "must be >= 0")
	}
	if cfg.StartJitter < 0 {
		add("start_jitter", "must be >= 0")
	}

	if cfg.InfluxEnabled() {
		if strings.Contains(cfg.InfluxHost, "/") && !strings.Contains(cfg.InfluxHost, "://") {
			add("influxdb_host", "must be a host name or URL (got %q)", cfg.InfluxHost)
		}
		if cfg.InfluxPort < 1 || cfg.InfluxPort > 65535 {
			add("influxdb_port", "must be between 1 and 65535 (got %d)", cfg.InfluxPort)
		}
		if cfg.InfluxDatabase == "" {
			add("influxdb_dbname", "is required when influxdb_host is set")
		}
		if cfg.InfluxMeasurement == "" {
			add("influxdb_measurement", "must not be empty")
		}
		if cfg.InfluxTimeout <= 0 {
			add("influxdb_timeout", "must be positive")
		}
	}

	if cfg.ArtifactsGlob != "" && !doublestar.ValidatePattern(cfg.ArtifactsGlob) {
		add("artifacts_glob", "invalid glob pattern %q", cfg.ArtifactsGlob)
	}
	if cfg.ArtifactsEnabled() && cfg.ArchiveDir == "" {
		add("archive_dir", "is required when artifacts are collected")
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			add("metrics_addr", "must be host:port (got %q)", cfg.MetricsAddr)
		}
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		add("log_format", "must be 'json' or 'text' (got %q)", cfg.LogFormat)
	}

	if len(errs) > 0 {
		return &ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}
