package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from "1m30s" or from a bare
// number of seconds, in both YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d *Duration) UnmarshalTOML(v any) error {
	switch x := v.(type) {
	case string:
		return d.UnmarshalText([]byte(x))
	case int64:
		dur, err := Seconds(x)
		if err != nil {
			return err
		}
		*d = Duration(dur)
		return nil
	case float64:
		if x > float64(maxSeconds) || x < -float64(maxSeconds) {
			return fmt.Errorf("%g seconds is out of range", x)
		}
		*d = Duration(x * float64(time.Second))
		return nil
	}
	return fmt.Errorf("cannot use %T as a duration", v)
}

// fileConfig mirrors Config with optional fields, so only keys present in
// the file override lower layers.
type fileConfig struct {
	AppName      *string   `yaml:"app_name" toml:"app_name"`
	TestName     *string   `yaml:"name" toml:"name"`
	ProbeCommand *string   `yaml:"test_cmd" toml:"test_cmd"`
	ProbeArgv    []string  `yaml:"probe_argv" toml:"probe_argv"`
	Interval     *Duration `yaml:"interval" toml:"interval"`
	Timeout      *Duration `yaml:"timeout" toml:"timeout"`
	RoutingKey   *string   `yaml:"routing_key" toml:"routing_key"`

	Strategy    *string   `yaml:"strategy" toml:"strategy"`
	MaxCycles   *int      `yaml:"max_cycles" toml:"max_cycles"`
	StartJitter *Duration `yaml:"start_jitter" toml:"start_jitter"`

	CaptureStderr *bool `yaml:"capture_stderr" toml:"capture_stderr"`

	Influx struct {
		Host        *string   `yaml:"host" toml:"host"`
		Port        *int      `yaml:"port" toml:"port"`
		Username    *string   `yaml:"username" toml:"username"`
		Password    *string   `yaml:"password" toml:"password"`
		Database    *string   `yaml:"dbname" toml:"dbname"`
		Retention   *string   `yaml:"rpname" toml:"rpname"`
		Measurement *string   `yaml:"measurement" toml:"measurement"`
		Timeout     *Duration `yaml:"timeout" toml:"timeout"`
	} `yaml:"influxdb" toml:"influxdb"`

	Artifacts struct {
		Glob       *string `yaml:"glob" toml:"glob"`
		Image      *string `yaml:"image" toml:"image"`
		ArchiveDir *string `yaml:"archive_dir" toml:"archive_dir"`
	} `yaml:"artifacts" toml:"artifacts"`

	MetricsAddr   *string `yaml:"metrics_addr" toml:"metrics_addr"`
	Verbose       *bool   `yaml:"verbose" toml:"verbose"`
	LogFormat     *string `yaml:"log_format" toml:"log_format"`
	LogLevel      *string `yaml:"log_level" toml:"log_level"`
	TUI           *bool   `yaml:"tui" toml:"tui"`
	SkipPreflight *bool   `yaml:"skip_preflight" toml:"skip_preflight"`
}

// LoadFile overlays the YAML (.yaml, .yml) or TOML (.toml) file at path
// onto cfg. Unknown keys are rejected.
func LoadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("config file %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}

	fc.apply(cfg)
	cfg.ConfigFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	set(&cfg.AppName, fc.AppName)
	set(&cfg.TestName, fc.TestName)
	set(&cfg.ProbeCommand, fc.ProbeCommand)
	if len(fc.ProbeArgv) > 0 {
		cfg.ProbeArgv = fc.ProbeArgv
	}
	setDuration(&cfg.Interval, fc.Interval)
	setDuration(&cfg.Timeout, fc.Timeout)
	set(&cfg.RoutingKey, fc.RoutingKey)

	set(&cfg.Strategy, fc.Strategy)
	set(&cfg.MaxCycles, fc.MaxCycles)
	setDuration(&cfg.StartJitter, fc.StartJitter)
	set(&cfg.CaptureStderr, fc.CaptureStderr)

	set(&cfg.InfluxHost, fc.Influx.Host)
	set(&cfg.InfluxPort, fc.Influx.Port)
	set(&cfg.InfluxUsername, fc.Influx.Username)
	set(&cfg.InfluxPassword, fc.Influx.Password)
	set(&cfg.InfluxDatabase, fc.Influx.Database)
	set(&cfg.InfluxRetention, fc.Influx.Retention)
	set(&cfg.InfluxMeasurement, fc.Influx.Measurement)
	setDuration(&cfg.InfluxTimeout, fc.Influx.Timeout)

	set(&cfg.ArtifactsGlob, fc.Artifacts.Glob)
	set(&cfg.ImageArtifact, fc.Artifacts.Image)
	set(&cfg.ArchiveDir, fc.Artifacts.ArchiveDir)

	set(&cfg.MetricsAddr, fc.MetricsAddr)
	set(&cfg.Verbose, fc.Verbose)
	set(&cfg.LogFormat, fc.LogFormat)
	set(&cfg.LogLevel, fc.LogLevel)
	set(&cfg.TUI, fc.TUI)
	set(&cfg.SkipPreflight, fc.SkipPreflight)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *Duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}
