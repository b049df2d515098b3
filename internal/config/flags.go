package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"
)

// durationValue is a pflag.Value that also accepts bare seconds.
type durationValue time.Duration

func newDurationValue(p *time.Duration) *durationValue {
	return (*durationValue)(p)
}

func (d *durationValue) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = durationValue(v)
	return nil
}

func (d *durationValue) Type() string { return "duration" }

func (d *durationValue) String() string { return time.Duration(*d).String() }

// BindFlags registers every runner flag on fs, backed by cfg. The current
// values of cfg become the flag defaults shown in help output.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	// Probe
	fs.StringVarP(&cfg.AppName, "app-name", "a", cfg.AppName, "application the probe belongs to (env "+EnvPrefix+"APP_NAME)")
	fs.StringVarP(&cfg.TestName, "name", "n", cfg.TestName, "name of the probe (env "+EnvPrefix+"NAME)")
	fs.StringVarP(&cfg.ProbeCommand, "test-cmd", "c", cfg.ProbeCommand, "probe command, split on whitespace (env "+EnvPrefix+"TEST_CMD)")
	fs.StringSliceVar(&cfg.ProbeArgv, "probe-arg", cfg.ProbeArgv, "probe argv element, repeatable, overrides --test-cmd")
	fs.VarP(newDurationValue(&cfg.Interval), "interval", "i", "time between probe starts; bare numbers are seconds")
	fs.VarP(newDurationValue(&cfg.Timeout), "timeout", "t", "probe runtime limit, at most the interval; bare numbers are seconds")
	fs.StringVar(&cfg.RoutingKey, "routing-key", cfg.RoutingKey, "routing key attached to every outcome")

	// Scheduling
	fs.StringVar(&cfg.Strategy, "strategy", cfg.Strategy, "timeout enforcement: watchdog or poll")
	fs.IntVar(&cfg.MaxCycles, "max-cycles", cfg.MaxCycles, "stop after this many cycles (0 = run forever)")
	fs.Var(newDurationValue(&cfg.StartJitter), "start-jitter", "maximum random delay before the first cycle")
	fs.BoolVar(&cfg.CaptureStderr, "capture-stderr", cfg.CaptureStderr, "log probe stderr instead of passing it through")

	// InfluxDB
	fs.StringVar(&cfg.InfluxHost, "influxdb-host", cfg.InfluxHost, "InfluxDB host or URL; empty disables InfluxDB output")
	fs.IntVar(&cfg.InfluxPort, "influxdb-port", cfg.InfluxPort, "InfluxDB port")
	fs.StringVar(&cfg.InfluxUsername, "influxdb-username", cfg.InfluxUsername, "InfluxDB user")
	fs.StringVar(&cfg.InfluxPassword, "influxdb-password", cfg.InfluxPassword, "InfluxDB password (prefer env "+EnvPrefix+"INFLUXDB_PASSWORD)")
	fs.StringVar(&cfg.InfluxDatabase, "influxdb-dbname", cfg.InfluxDatabase, "InfluxDB database")
	fs.StringVar(&cfg.InfluxRetention, "influxdb-rpname", cfg.InfluxRetention, "InfluxDB retention policy")
	fs.StringVar(&cfg.InfluxMeasurement, "influxdb-measurement", cfg.InfluxMeasurement, "measurement name for outcome lines")
	fs.Var(newDurationValue(&cfg.InfluxTimeout), "influxdb-timeout", "timeout for one InfluxDB write")

	// Artifacts
	fs.StringVar(&cfg.ArtifactsGlob, "artifacts-glob", cfg.ArtifactsGlob, "files to archive when a probe fails (doublestar glob)")
	fs.StringVar(&cfg.ImageArtifact, "image-artifact", cfg.ImageArtifact, "screenshot or image to archive when a probe fails")
	fs.StringVar(&cfg.ArchiveDir, "archive-dir", cfg.ArchiveDir, "directory receiving archived artifacts")

	// Observability
	fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics address; empty disables")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", cfg.Verbose, "debug logging and probe output")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: json or text")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	fs.BoolVar(&cfg.TUI, "tui", cfg.TUI, "show the live dashboard")
	fs.BoolVar(&cfg.SkipPreflight, "skip-preflight", cfg.SkipPreflight, "skip preflight checks")
}

// ApplyFlags copies every flag the user set on fs onto dst. fs must have
// been populated by BindFlags.
func ApplyFlags(dst *Config, fs *pflag.FlagSet) error {
	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	BindFlags(overlay, dst)

	var errs []error
	fs.Visit(func(f *pflag.Flag) {
		target := overlay.Lookup(f.Name)
		if target == nil {
			return
		}
		if src, ok := f.Value.(pflag.SliceValue); ok {
			if dstSlice, ok := target.Value.(pflag.SliceValue); ok {
				if err := dstSlice.Replace(src.GetSlice()); err != nil {
					errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
				}
				return
			}
		}
		if err := target.Value.Set(f.Value.String()); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Load builds the effective configuration: defaults, then the config file
// (explicit path or MONITOR_CONFIG), then the environment, then the flags
// set on fs.
func Load(fs *pflag.FlagSet, path string, lookup LookupFunc) (*Config, error) {
	cfg := DefaultConfig()
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if path == "" {
		path, _ = lookup(EnvConfigFile)
	}
	if path != "" {
		if err := LoadFile(cfg, path); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}
	if err := ApplyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	if fs != nil {
		if err := ApplyFlags(cfg, fs); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}
	return cfg, nil
}
