// Package main provides the monitor-runner CLI entry point.
//
// monitor-runner launches a probe command on a fixed cadence, kills it if it
// outlives its timeout, and reports every run as a structured outcome.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/randomizedcoder/go-monitor-runner/internal/config"
	"github.com/randomizedcoder/go-monitor-runner/internal/logging"
	"github.com/randomizedcoder/go-monitor-runner/internal/orchestrator"
	"github.com/randomizedcoder/go-monitor-runner/internal/preflight"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/monitor-runner
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		fmt.Fprintf(stderr, "Configuration error: %v\n", cfgErr.Err)
		return exitConfig
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitRuntime
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "monitor-runner",
		Short:         "Run a probe command on a fixed cadence with a hard timeout",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	// a malformed flag is a configuration error like any other
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &config.ConfigError{Err: err}
	})
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML or TOML config file (env "+config.EnvConfigFile+")")

	runCmd := &cobra.Command{
		Use:   "run [flags] [--] [probe command...]",
		Short: "Supervise the probe until interrupted",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), configPath, args)
			if err != nil {
				return err
			}
			return doRun(cmd.Context(), cfg, stdout)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check [flags] [--] [probe command...]",
		Short: "Validate the configuration and run preflight checks",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), configPath, args)
			if err != nil {
				return err
			}
			return doCheck(cfg, stdout)
		},
	}

	for _, cmd := range []*cobra.Command{runCmd, checkCmd} {
		config.BindFlags(cmd.Flags(), config.DefaultConfig())
		// everything after the probe name belongs to the probe
		cmd.Flags().SetInterspersed(false)
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(stdout, "monitor-runner %s\n", version)
		},
	}

	root.AddCommand(runCmd, checkCmd, versionCmd)
	return root
}

// loadConfig layers file, env and flags, applies a positional probe
// command and validates the result.
func loadConfig(fs *pflag.FlagSet, path string, args []string) (*config.Config, error) {
	cfg, err := config.Load(fs, path, os.LookupEnv)
	if err != nil {
		return nil, err
	}
	switch len(args) {
	case 0:
	case 1:
		cfg.ProbeCommand = args[0]
		cfg.ProbeArgv = nil
	default:
		cfg.ProbeArgv = args
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	// When the dashboard owns the terminal, logs would tear it.
	if cfg.TUI {
		return logging.Discard()
	}
	return logging.NewLogger(cfg.LogFormat, cfg.LogLevel, cfg.Verbose)
}

func doRun(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	logger := newLogger(cfg)
	logging.SetDefault(logger)

	logger.Info("starting",
		"version", version,
		"monitor", cfg.MonitorKey(),
		"command", cfg.Command(),
		"interval", cfg.Interval.String(),
		"timeout", cfg.Timeout.String(),
		"strategy", cfg.Strategy,
		"metrics_addr", cfg.MetricsAddr,
	)
	if !cfg.TUI {
		printBanner(stdout, cfg)
	}

	orch, err := orchestrator.New(cfg, logger, orchestrator.WithOutput(stdout))
	if err != nil {
		return err
	}
	if err := orch.Run(ctx); err != nil {
		logger.Error("orchestrator_failed", "error", err)
		return err
	}
	return nil
}

func doCheck(cfg *config.Config, stdout io.Writer) error {
	argv, err := cfg.Argv()
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Configuration OK %s\n\n", cfg)
	result := preflight.RunAll(preflight.Options{
		ProbeArgv:  argv,
		Interval:   cfg.Interval,
		Timeout:    cfg.Timeout,
		ArchiveDir: cfg.ArchiveDir,
		Artifacts:  cfg.ArtifactsEnabled(),
	})
	preflight.PrintResults(stdout, result)
	if !result.Passed {
		return orchestrator.ErrPreflight
	}
	return nil
}

// printBanner prints the startup banner.
func printBanner(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔═══════════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                          monitor-runner                           ║")
	fmt.Fprintln(w, "║          Periodic Probe Supervision with Hard Timeouts            ║")
	fmt.Fprintln(w, "╚═══════════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Monitor:     %s\n", cfg)
	fmt.Fprintf(w, "  Strategy:    %s\n", cfg.Strategy)
	if cfg.MaxCycles > 0 {
		fmt.Fprintf(w, "  Cycles:      %d\n", cfg.MaxCycles)
	}
	if cfg.InfluxEnabled() {
		fmt.Fprintf(w, "  InfluxDB:    %s db=%s\n", cfg.InfluxHost, cfg.InfluxDatabase)
	}
	if cfg.ArtifactsEnabled() {
		fmt.Fprintf(w, "  Artifacts:   %s\n", cfg.ArchiveDir)
	}
	if cfg.MetricsAddr != "" {
		fmt.Fprintf(w, "  Metrics:     http://%s/metrics\n", cfg.MetricsAddr)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Press Ctrl+C to stop.")
	fmt.Fprintln(w)
}
