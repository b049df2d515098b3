package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable the runner reads.
const EnvPrefix = "MONITOR_"

// EnvConfigFile names the config file when --config is not given.
const EnvConfigFile = EnvPrefix + "CONFIG"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type envBinding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func dur(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func boolean(dst func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = b
		return nil
	}
}

var envBindings = []envBinding{
	{"TEST_CMD", str(func(c *Config) *string { return &c.ProbeCommand })},
	{"APP_NAME", str(func(c *Config) *string { return &c.AppName })},
	{"NAME", str(func(c *Config) *string { return &c.TestName })},
	{"INTERVAL", dur(func(c *Config) *time.Duration { return &c.Interval })},
	{"TIMEOUT", dur(func(c *Config) *time.Duration { return &c.Timeout })},
	{"ROUTING_KEY", str(func(c *Config) *string { return &c.RoutingKey })},
	{"STRATEGY", str(func(c *Config) *string { return &c.Strategy })},
	{"MAX_CYCLES", integer(func(c *Config) *int { return &c.MaxCycles })},
	{"START_JITTER", dur(func(c *Config) *time.Duration { return &c.StartJitter })},
	{"CAPTURE_STDERR", boolean(func(c *Config) *bool { return &c.CaptureStderr })},

	{"INFLUXDB_HOST", str(func(c *Config) *string { return &c.InfluxHost })},
	{"INFLUXDB_PORT", integer(func(c *Config) *int { return &c.InfluxPort })},
	{"INFLUXDB_USERNAME", str(func(c *Config) *string { return &c.InfluxUsername })},
	{"INFLUXDB_PASSWORD", str(func(c *Config) *string { return &c.InfluxPassword })},
	{"INFLUXDB_DBNAME", str(func(c *Config) *string { return &c.InfluxDatabase })},
	{"INFLUXDB_RPNAME", str(func(c *Config) *string { return &c.InfluxRetention })},
	{"INFLUXDB_MEASUREMENT", str(func(c *Config) *string { return &c.InfluxMeasurement })},

	{"ARTIFACT_GLOB", str(func(c *Config) *string { return &c.ArtifactsGlob })},
	{"IMAGE_PATH", str(func(c *Config) *string { return &c.ImageArtifact })},
	{"ARCHIVE_DIR", str(func(c *Config) *string { return &c.ArchiveDir })},

	{"METRICS_ADDR", str(func(c *Config) *string { return &c.MetricsAddr })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.LogFormat })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
}

// EnvNames returns every environment variable ApplyEnv reads.
func EnvNames() []string {
	names := make([]string, len(envBindings))
	for i, b := range envBindings {
		names[i] = EnvPrefix + b.name
	}
	return names
}

// ApplyEnv overlays MONITOR_* variables onto cfg. A nil lookup uses the
// process environment. Malformed values are reported together.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var errs []error
	for _, b := range envBindings {
		name := EnvPrefix + b.name
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			errs = append(errs, ValidationError{
				Field:   name,
				Message: fmt.Sprintf("invalid value %q: %v", v, err),
			})
		}
	}
	if len(errs) > 0 {
		return &ConfigError{Err: errors.Join(errs...)}
	}
	return nil
}
