// Package config provides configuration management for monitor-runner.
//
// Values are layered: DefaultConfig, then an optional YAML or TOML file,
// then MONITOR_* environment variables, then command-line flags.
package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/process"
)

// Config holds all configuration options for the runner.
type Config struct {
	// Probe
	AppName      string        `json:"app_name"`
	TestName     string        `json:"name"`
	ProbeCommand string        `json:"test_cmd"`
	ProbeArgv    []string      `json:"probe_argv,omitempty"` // overrides ProbeCommand
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	RoutingKey   string        `json:"routing_key"`

	// Scheduling
	Strategy    string        `json:"strategy"` // watchdog, poll
	MaxCycles   int           `json:"max_cycles"` // 0 = forever
	StartJitter time.Duration `json:"start_jitter"`

	// Probe output
	CaptureStderr bool `json:"capture_stderr"`

	// InfluxDB
	InfluxHost        string        `json:"influxdb_host"`
	InfluxPort        int           `json:"influxdb_port"`
	InfluxUsername    string        `json:"influxdb_username"`
	InfluxPassword    string        `json:"-"`
	InfluxDatabase    string        `json:"influxdb_dbname"`
	InfluxRetention   string        `json:"influxdb_rpname"`
	InfluxMeasurement string        `json:"influxdb_measurement"`
	InfluxTimeout     time.Duration `json:"influxdb_timeout"`

	// Artifacts, collected on failure only
	ArtifactsGlob string `json:"artifacts_glob"`
	ImageArtifact string `json:"image_artifact"`
	ArchiveDir    string `json:"archive_dir"`

	// Observability
	MetricsAddr string `json:"metrics_addr"` // "" disables the HTTP server
	Verbose     bool   `json:"verbose"`
	LogFormat   string `json:"log_format"` // json, text
	LogLevel    string `json:"log_level"`
	TUI         bool   `json:"tui"`

	// Diagnostics
	SkipPreflight bool `json:"skip_preflight"`

	// ConfigFile is the file that was loaded, if any.
	ConfigFile string `json:"config_file,omitempty"`
}

// DefaultConfig returns a Config with the runner's defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval:   10 * time.Second,
		Timeout:    5 * time.Second,
		RoutingKey: "monitor-pilot",

		Strategy: "watchdog",

		InfluxPort:        8086,
		InfluxDatabase:    "monitor",
		InfluxMeasurement: "monitor",
		InfluxTimeout:     5 * time.Second,

		ArchiveDir: "artifacts",

		MetricsAddr: "0.0.0.0:17091",
		LogFormat:   "json",
		LogLevel:    "info",
	}
}

// Argv returns the probe command as an argument vector. An explicit
// ProbeArgv wins; otherwise ProbeCommand is split on whitespace.
func (c *Config) Argv() ([]string, error) {
	if len(c.ProbeArgv) > 0 {
		return append([]string(nil), c.ProbeArgv...), nil
	}
	return process.Tokenize(c.ProbeCommand)
}

// Command returns a printable form of the probe command.
func (c *Config) Command() string {
	if len(c.ProbeArgv) > 0 {
		return strings.Join(c.ProbeArgv, " ")
	}
	return strings.Join(strings.Fields(c.ProbeCommand), " ")
}

// InfluxEnabled reports whether outcomes are written to InfluxDB.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxHost != ""
}

// ArtifactsEnabled reports whether failures trigger archival.
func (c *Config) ArtifactsEnabled() bool {
	return c.ArtifactsGlob != "" || c.ImageArtifact != ""
}

// MonitorKey identifies the monitor for jitter and display.
func (c *Config) MonitorKey() string {
	return c.AppName + "/" + c.TestName
}

// String describes the runtime options the way the startup banner shows
// them: "(app/name: cmd every Ns for Ns)".
func (c *Config) String() string {
	return "(" + c.MonitorKey() + ": " + c.Command() +
		" every " + seconds(c.Interval) + " for " + seconds(c.Timeout) + ")"
}

func seconds(d time.Duration) string {
	if d%time.Second == 0 {
		return strconv.FormatInt(int64(d/time.Second), 10) + "s"
	}
	return d.String()
}

// ParseDuration accepts Go durations ("1m30s") and bare integers, which
// mean seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Seconds(n)
	}
	return time.ParseDuration(s)
}

// maxSeconds is the largest whole number of seconds a time.Duration holds.
const maxSeconds = math.MaxInt64 / int64(time.Second)

// Seconds converts a bare number of seconds, rejecting values that do not
// fit in a time.Duration.
func Seconds(n int64) (time.Duration, error) {
	if n > maxSeconds || n < -maxSeconds {
		return 0, fmt.Errorf("%d seconds is out of range", n)
	}
	return time.Duration(n) * time.Second, nil
}
