package config

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AppName = "shop"
	cfg.TestName = "checkout"
	cfg.ProbeCommand = "curl -fsS http://localhost/health"
	return cfg
}

func envMap(m map[string]string) LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Interval != 10*time.Second {
		t.Errorf("Interval = %v, want 10s", cfg.Interval)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if cfg.RoutingKey != "monitor-pilot" {
		t.Errorf("RoutingKey = %q, want monitor-pilot", cfg.RoutingKey)
	}
	if cfg.InfluxPort != 8086 || cfg.InfluxDatabase != "monitor" {
		t.Errorf("influx defaults = %d/%q, want 8086/monitor", cfg.InfluxPort, cfg.InfluxDatabase)
	}
	if cfg.Strategy != "watchdog" {
		t.Errorf("Strategy = %q, want watchdog", cfg.Strategy)
	}
	if cfg.MetricsAddr != "0.0.0.0:17091" {
		t.Errorf("MetricsAddr = %q, want %q", cfg.MetricsAddr, "0.0.0.0:17091")
	}
}

func TestParseDuration(t *testing.T) {
	testCases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"10", 10 * time.Second, false},
		{" 5 ", 5 * time.Second, false},
		{"0", 0, false},
		{"1m30s", 90 * time.Second, false},
		{"250ms", 250 * time.Millisecond, false},
		{"ten", 0, true},
		{"", 0, true},
		{"9223372036", 9223372036 * time.Second, false},
		{"9223372037", 0, true},
		{"99999999999999", 0, true},
		{"-9223372037", 0, true},
	}
	for _, tc := range testCases {
		got, err := ParseDuration(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseDuration(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDuration(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestArgv(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProbeCommand = "  sh  -c   true "
	argv, err := cfg.Argv()
	if err != nil || !slices.Equal(argv, []string{"sh", "-c", "true"}) {
		t.Errorf("Argv() = %q, %v", argv, err)
	}

	cfg.ProbeArgv = []string{"sh", "-c", "exit 3"}
	argv, _ = cfg.Argv()
	if !slices.Equal(argv, []string{"sh", "-c", "exit 3"}) {
		t.Errorf("ProbeArgv not preferred: %q", argv)
	}
	argv[0] = "mutated"
	if cfg.ProbeArgv[0] != "sh" {
		t.Error("Argv() aliases ProbeArgv")
	}
}

func TestString(t *testing.T) {
	cfg := validConfig()
	cfg.ProbeCommand = "sleep 1"
	want := "(shop/checkout: sleep 1 every 10s for 5s)"
	if got := cfg.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

// ============================================================================
// Validate
// ============================================================================

func TestValidate_ValidConfig(t *testing.T) {
	if err := Validate(validConfig()); err != nil {
		t.Errorf("valid config should not error: %v", err)
	}
}

func TestValidate_TimeoutEqualsInterval(t *testing.T) {
	cfg := validConfig()
	cfg.Interval = 5 * time.Second
	cfg.Timeout = 5 * time.Second
	if err := Validate(cfg); err != nil {
		t.Errorf("timeout == interval should be accepted: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"timeout exceeds interval", func(c *Config) { c.Interval = 5 * time.Second; c.Timeout = 10 * time.Second }, "timeout"},
		{"zero interval", func(c *Config) { c.Interval = 0 }, "interval"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"empty command", func(c *Config) { c.ProbeCommand = "   " }, "test_cmd"},
		{"missing app", func(c *Config) { c.AppName = "" }, "app_name"},
		{"missing name", func(c *Config) { c.TestName = "" }, "name"},
		{"bad strategy", func(c *Config) { c.Strategy = "spin" }, "strategy"},
		{"negative max cycles", func(c *Config) { c.MaxCycles = -1 }, "max_cycles"},
		{"bad influx port", func(c *Config) { c.InfluxHost = "influx"; c.InfluxPort = 70000 }, "influxdb_port"},
		{"bad glob", func(c *Config) { c.ArtifactsGlob = "logs/[a-" }, "artifacts_glob"},
		{"artifacts without dir", func(c *Config) { c.ImageArtifact = "shot.png"; c.ArchiveDir = "" }, "archive_dir"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "17091" }, "metrics_addr"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := Validate(cfg)
			var cfgErr *ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Validate() = %v, want *ConfigError", err)
			}
			if !slices.Contains(cfgErr.Fields(), tc.field) {
				t.Errorf("Fields() = %v, want %s", cfgErr.Fields(), tc.field)
			}
		})
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = 5 * time.Second
	cfg.Timeout = 10 * time.Second

	err := Validate(cfg)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Validate() = %v, want *ConfigError", err)
	}
	fields := cfgErr.Fields()
	for _, want := range []string{"app_name", "name", "test_cmd", "timeout"} {
		if !slices.Contains(fields, want) {
			t.Errorf("Fields() = %v, missing %s", fields, want)
		}
	}
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Error("errors.As(ValidationError) failed through ConfigError")
	}
	if !strings.HasPrefix(err.Error(), "invalid configuration: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "test_field", Message: "test message"}
	if got := err.Error(); got != "test_field: test message" {
		t.Errorf("Error string = %q, want %q", got, "test_field: test message")
	}
}

// ============================================================================
// Environment
// ============================================================================

func TestApplyEnv(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"MONITOR_TEST_CMD":          "sleep 1",
		"MONITOR_APP_NAME":          "shop",
		"MONITOR_NAME":              "checkout",
		"MONITOR_INTERVAL":          "30",
		"MONITOR_TIMEOUT":           "2500ms",
		"MONITOR_INFLUXDB_HOST":     "influx.local",
		"MONITOR_INFLUXDB_PORT":     "9999",
		"MONITOR_INFLUXDB_PASSWORD": "s3cret",
		"MONITOR_ARTIFACT_GLOB":     "out/**/*.log",
		"MONITOR_IMAGE_PATH":        "shot.png",
		"MONITOR_CAPTURE_STDERR":    "true",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.ProbeCommand != "sleep 1" || cfg.AppName != "shop" || cfg.TestName != "checkout" {
		t.Errorf("probe fields = %q %q %q", cfg.ProbeCommand, cfg.AppName, cfg.TestName)
	}
	if cfg.Interval != 30*time.Second || cfg.Timeout != 2500*time.Millisecond {
		t.Errorf("interval/timeout = %v/%v", cfg.Interval, cfg.Timeout)
	}
	if cfg.InfluxHost != "influx.local" || cfg.InfluxPort != 9999 || cfg.InfluxPassword != "s3cret" {
		t.Errorf("influx = %q:%d pw=%q", cfg.InfluxHost, cfg.InfluxPort, cfg.InfluxPassword)
	}
	if cfg.ArtifactsGlob != "out/**/*.log" || cfg.ImageArtifact != "shot.png" || !cfg.CaptureStderr {
		t.Errorf("artifacts = %q %q capture=%v", cfg.ArtifactsGlob, cfg.ImageArtifact, cfg.CaptureStderr)
	}
}

func TestApplyEnv_Malformed(t *testing.T) {
	cfg := DefaultConfig()
	err := ApplyEnv(cfg, envMap(map[string]string{
		"MONITOR_INTERVAL":      "soon",
		"MONITOR_INFLUXDB_PORT": "http",
	}))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("ApplyEnv = %v, want *ConfigError", err)
	}
	fields := cfgErr.Fields()
	if !slices.Contains(fields, "MONITOR_INTERVAL") || !slices.Contains(fields, "MONITOR_INFLUXDB_PORT") {
		t.Errorf("Fields() = %v", fields)
	}
}

func TestEnvNames(t *testing.T) {
	names := EnvNames()
	for _, want := range []string{"MONITOR_TEST_CMD", "MONITOR_ROUTING_KEY", "MONITOR_INFLUXDB_RPNAME"} {
		if !slices.Contains(names, want) {
			t.Errorf("EnvNames() missing %s", want)
		}
	}
}

// ============================================================================
// Files
// ============================================================================

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, "monitor.yaml", `
app_name: shop
name: checkout
probe_argv: [sh, -c, "exit 0"]
interval: 30
timeout: 2s
influxdb:
  host: influx.local
  rpname: week
artifacts:
  glob: "logs/**/*.txt"
`)
	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.AppName != "shop" || cfg.TestName != "checkout" {
		t.Errorf("names = %q/%q", cfg.AppName, cfg.TestName)
	}
	if !slices.Equal(cfg.ProbeArgv, []string{"sh", "-c", "exit 0"}) {
		t.Errorf("ProbeArgv = %q", cfg.ProbeArgv)
	}
	if cfg.Interval != 30*time.Second || cfg.Timeout != 2*time.Second {
		t.Errorf("interval/timeout = %v/%v", cfg.Interval, cfg.Timeout)
	}
	if cfg.InfluxHost != "influx.local" || cfg.InfluxRetention != "week" || cfg.InfluxPort != 8086 {
		t.Errorf("influx = %q rp=%q port=%d", cfg.InfluxHost, cfg.InfluxRetention, cfg.InfluxPort)
	}
	if cfg.ArtifactsGlob != "logs/**/*.txt" {
		t.Errorf("ArtifactsGlob = %q", cfg.ArtifactsGlob)
	}
	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "monitor.toml", `
app_name = "shop"
name = "search"
test_cmd = "sleep 1"
interval = 20
timeout = "1500ms"
strategy = "poll"

[influxdb]
host = "influx.local"
port = 8087
`)
	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.TestName != "search" || cfg.ProbeCommand != "sleep 1" || cfg.Strategy != "poll" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Interval != 20*time.Second || cfg.Timeout != 1500*time.Millisecond {
		t.Errorf("interval/timeout = %v/%v", cfg.Interval, cfg.Timeout)
	}
	if cfg.InfluxPort != 8087 {
		t.Errorf("InfluxPort = %d, want 8087", cfg.InfluxPort)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	testCases := []struct {
		name, file, content string
	}{
		{"unknown yaml key", "m.yaml", "intervall: 10\n"},
		{"unknown toml key", "m.toml", "intervall = 10\n"},
		{"bad duration", "m.yaml", "interval: soon\n"},
		{"yaml seconds overflow", "m.yaml", "interval: 99999999999999\n"},
		{"toml seconds overflow", "m.toml", "interval = 99999999999999\n"},
		{"bad extension", "m.json", "{}"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, tc.file, tc.content)
			if err := LoadFile(DefaultConfig(), path); err == nil {
				t.Error("LoadFile succeeded, want error")
			}
		})
	}
	if err := LoadFile(DefaultConfig(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile on a missing file succeeded")
	}
}

func TestLoadFile_EmptyYAML(t *testing.T) {
	path := writeFile(t, "empty.yaml", "")
	cfg := DefaultConfig()
	if err := LoadFile(cfg, path); err != nil {
		t.Fatalf("LoadFile(empty) = %v", err)
	}
	if cfg.Interval != 10*time.Second {
		t.Errorf("empty file changed Interval to %v", cfg.Interval)
	}
}

// ============================================================================
// Flags and layering
// ============================================================================

func newFlagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, DefaultConfig())
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%q): %v", args, err)
	}
	return fs
}

func TestDurationFlag_BareSeconds(t *testing.T) {
	cfg := DefaultConfig()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, cfg)
	if err := fs.Parse([]string{"--interval", "60", "-t", "1m"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Interval != time.Minute || cfg.Timeout != time.Minute {
		t.Errorf("interval/timeout = %v/%v, want 1m/1m", cfg.Interval, cfg.Timeout)
	}
	if f := fs.Lookup("interval"); f.Value.Type() != "duration" {
		t.Errorf("Type() = %q, want duration", f.Value.Type())
	}
}

func TestLoad_Precedence(t *testing.T) {
	path := writeFile(t, "m.yaml", "app_name: from-file\nname: file-test\ninterval: 30\ntimeout: 3\n")
	env := envMap(map[string]string{
		"MONITOR_NAME":    "env-test",
		"MONITOR_TIMEOUT": "4",
	})
	fs := newFlagSet(t, "--timeout", "7", "--probe-arg", "sh", "--probe-arg", "-c", "--probe-arg", "exit 0")

	cfg, err := Load(fs, path, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "from-file" {
		t.Errorf("AppName = %q, want file value", cfg.AppName)
	}
	if cfg.TestName != "env-test" {
		t.Errorf("TestName = %q, want env over file", cfg.TestName)
	}
	if cfg.Interval != 30*time.Second {
		t.Errorf("Interval = %v, want file value 30s", cfg.Interval)
	}
	if cfg.Timeout != 7*time.Second {
		t.Errorf("Timeout = %v, want flag over env", cfg.Timeout)
	}
	if !slices.Equal(cfg.ProbeArgv, []string{"sh", "-c", "exit 0"}) {
		t.Errorf("ProbeArgv = %q", cfg.ProbeArgv)
	}
}

func TestLoad_UnsetFlagsKeepLowerLayers(t *testing.T) {
	env := envMap(map[string]string{"MONITOR_ROUTING_KEY": "team-a"})
	cfg, err := Load(newFlagSet(t), "", env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RoutingKey != "team-a" {
		t.Errorf("RoutingKey = %q, want env value", cfg.RoutingKey)
	}
}

func TestLoad_ConfigFromEnv(t *testing.T) {
	path := writeFile(t, "m.toml", `app_name = "via-env"`)
	cfg, err := Load(nil, "", envMap(map[string]string{EnvConfigFile: path}))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AppName != "via-env" {
		t.Errorf("AppName = %q, want via-env", cfg.AppName)
	}
}

func TestLoad_BadFileIsConfigError(t *testing.T) {
	_, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml"), envMap(nil))
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("Load = %v, want *ConfigError", err)
	}
}
