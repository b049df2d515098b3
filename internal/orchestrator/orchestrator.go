package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/randomizedcoder/go-monitor-runner/internal/artifacts"
	"github.com/randomizedcoder/go-monitor-runner/internal/config"
	"github.com/randomizedcoder/go-monitor-runner/internal/metrics"
	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/preflight"
	"github.com/randomizedcoder/go-monitor-runner/internal/report"
	"github.com/randomizedcoder/go-monitor-runner/internal/stats"
	"github.com/randomizedcoder/go-monitor-runner/internal/supervisor"
	"github.com/randomizedcoder/go-monitor-runner/internal/tui"
)

// ErrPreflight is returned by Run when a required preflight check fails.
var ErrPreflight = errors.New("preflight checks failed (use --skip-preflight to override)")

// SpecFromConfig derives the immutable per-run input from cfg.
func SpecFromConfig(cfg *config.Config) (supervisor.RunSpec, error) {
	argv, err := cfg.Argv()
	if err != nil {
		return supervisor.RunSpec{}, err
	}
	return supervisor.RunSpec{
		AppName:    cfg.AppName,
		TestName:   cfg.TestName,
		RoutingKey: cfg.RoutingKey,
		Argv:       argv,
		Interval:   cfg.Interval,
		Timeout:    cfg.Timeout,
	}, nil
}

// Orchestrator coordinates all components for one monitor.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger
	out    io.Writer

	spec      supervisor.RunSpec
	strategy  supervisor.Strategy
	registry  *prometheus.Registry
	metrics   *metrics.Collector
	tracker   *stats.Tracker
	pipeline  *Pipeline
	scheduler *Scheduler
	server    *metrics.Server
	program   *tea.Program

	startTime time.Time
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithOutput sets where preflight results and the exit summary go.
// The default is stdout.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// New creates an Orchestrator from a validated configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	spec, err := SpecFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	strategy, err := supervisor.ParseStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	orch := &Orchestrator{
		config:    cfg,
		logger:    logger,
		out:       os.Stdout,
		spec:      spec,
		strategy:  strategy,
		registry:  prometheus.NewRegistry(),
		tracker:   stats.NewTracker(now),
		startTime: now,
	}
	for _, opt := range opts {
		opt(orch)
	}

	orch.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	orch.metrics = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		AppName:  cfg.AppName,
		TestName: cfg.TestName,
		Strategy: strategy.String(),
		Interval: cfg.Interval,
		Timeout:  cfg.Timeout,
	}, orch.registry)

	reporters := []report.Reporter{report.NewLogReporter(logger)}
	if cfg.InfluxEnabled() {
		w, err := report.NewInfluxWriter(report.InfluxConfig{
			Host:            cfg.InfluxHost,
			Port:            cfg.InfluxPort,
			Username:        cfg.InfluxUsername,
			Password:        cfg.InfluxPassword,
			Database:        cfg.InfluxDatabase,
			RetentionPolicy: cfg.InfluxRetention,
			Measurement:     cfg.InfluxMeasurement,
			Timeout:         cfg.InfluxTimeout,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("influxdb: %w", err)
		}
		reporters = append(reporters, w)
	}

	var hook artifacts.Hook
	if cfg.ArtifactsEnabled() {
		hook = &artifacts.DirArchiver{
			Root:   cfg.ArchiveDir,
			Glob:   cfg.ArtifactsGlob,
			Image:  cfg.ImageArtifact,
			Logger: logger,
		}
	}

	if cfg.TUI {
		model := tui.New(tui.Config{
			Monitor:     cfg.MonitorKey(),
			Command:     spec.Command(),
			Interval:    cfg.Interval,
			Timeout:     cfg.Timeout,
			Strategy:    strategy.String(),
			MetricsAddr: cfg.MetricsAddr,
			StatsSource: orch.tracker,
		})
		orch.program = tea.NewProgram(model, tea.WithAltScreen())
	}

	orch.pipeline = &Pipeline{
		Hook:      hook,
		Reporters: reporters,
		Metrics:   orch.metrics,
		Stats:     orch.tracker,
		Logger:    logger,
	}
	if orch.program != nil {
		orch.pipeline.OnOutcome = func(o outcome.Outcome) { tui.SendOutcome(orch.program, o) }
	}

	executor := supervisor.New(supervisor.Config{
		Enforcer:      supervisor.NewEnforcer(strategy, logger),
		Logger:        logger,
		CaptureStderr: cfg.CaptureStderr || cfg.TUI,
		Verbose:       cfg.Verbose,
		Callbacks: supervisor.Callbacks{
			OnStart: orch.onStart,
		},
	})

	orch.scheduler = NewScheduler(SchedulerConfig{
		Spec:        spec,
		Executor:    executor,
		Sink:        orch.pipeline,
		Logger:      logger,
		MaxCycles:   uint64(cfg.MaxCycles),
		StartJitter: cfg.StartJitter,
		Jitter:      supervisor.NewJitterSource(0),
		JitterKey:   cfg.MonitorKey(),
		OnPhase:     orch.onPhase,
		OnOverrun:   orch.pipeline.RecordOverrun,
	})

	if cfg.MetricsAddr != "" {
		orch.server = metrics.NewServer(cfg.MetricsAddr, orch.registry, orch.metrics, logger)
	}

	return orch, nil
}

// Run supervises the probe until SIGINT, SIGTERM, cancellation of ctx or
// MaxCycles. A stop request is a normal exit and returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Options{
			ProbeArgv:  o.spec.Argv,
			Interval:   o.spec.Interval,
			Timeout:    o.spec.Timeout,
			ArchiveDir: o.config.ArchiveDir,
			Artifacts:  o.config.ArtifactsEnabled(),
		})
		preflight.PrintResults(o.out, result)
		if !result.Passed {
			return ErrPreflight
		}
	}

	if o.server != nil {
		if err := o.server.Listen(); err != nil {
			return err
		}
	}

	o.startTime = time.Now()
	o.logger.Info("monitor_starting",
		"app", o.spec.AppName,
		"name", o.spec.TestName,
		"command", o.spec.Command(),
		"interval", o.spec.Interval.String(),
		"timeout", o.spec.Timeout.String(),
		"strategy", o.strategy.String(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		err := o.scheduler.Run(gctx)
		tui.SendQuit(o.program)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if o.server != nil {
		g.Go(func() error {
			return o.server.Serve(gctx)
		})
	}

	if o.program != nil {
		g.Go(func() error {
			// quitting the dashboard stops the monitor
			defer cancel()
			if _, err := o.program.Run(); err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	o.logger.Info("monitor_stopped", "cycles", o.tracker.Snapshot().Cycles, "elapsed", time.Since(o.startTime).String())
	o.printExitSummary()
	return err
}

func (o *Orchestrator) onStart(cycle uint64, pid int) {
	if o.config.Verbose {
		o.logger.Debug("probe_process_started", "cycle", cycle, "pid", pid)
	}
}

func (o *Orchestrator) onPhase(p Phase, until time.Time) {
	tui.SendPhase(o.program, p.String(), until)
}

func (o *Orchestrator) printExitSummary() {
	addr := ""
	if o.server != nil {
		addr = o.server.Addr()
	}
	fmt.Fprint(o.out, stats.FormatSummary(o.tracker.Snapshot(), stats.SummaryConfig{
		Monitor:     o.config.MonitorKey(),
		Duration:    time.Since(o.startTime),
		Interval:    o.spec.Interval,
		Timeout:     o.spec.Timeout,
		Strategy:    o.strategy.String(),
		MetricsAddr: addr,
	}))
}

// Metrics returns the metrics collector for external access.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Stats returns the statistics tracker for external access.
func (o *Orchestrator) Stats() *stats.Tracker {
	return o.tracker
}

// Registry returns the Prometheus registry served on /metrics.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}
