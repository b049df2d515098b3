package supervisor

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/logging"
	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/process"
)

// recentOutputLines is how much probe stderr is attached to a failure log.
const recentOutputLines = 10

// Launcher starts a probe. It exists so tests can substitute fake processes.
type Launcher interface {
	Launch(c process.Command) (Process, error)
}

// OSLauncher adapts process.Launcher to the Launcher interface.
type OSLauncher struct {
	process.Launcher
}

func (l OSLauncher) Launch(c process.Command) (Process, error) {
	h, err := l.Launcher.Launch(c)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// RunSpec is the per-run input of the executor. It is derived once from the
// configuration and copied into every cycle.
type RunSpec struct {
	AppName    string
	TestName   string
	RoutingKey string
	Argv       []string
	Env        []string
	Dir        string
	Interval   time.Duration
	Timeout    time.Duration
}

// Command returns the probe command line joined with spaces.
func (s RunSpec) Command() string { return strings.Join(s.Argv, " ") }

// Callbacks contains optional hooks for executor events.
type Callbacks struct {
	// OnStart is called after the probe has been launched.
	OnStart func(cycle uint64, pid int)
}

// Config holds configuration for creating an Executor.
type Config struct {
	Launcher  Launcher // default: OSLauncher
	Enforcer  Enforcer // default: Watchdog
	Logger    *slog.Logger
	Callbacks Callbacks

	// CaptureStderr routes probe stderr through a logging.OutputHandler.
	CaptureStderr bool
	Verbose       bool
}

// Executor performs a single bounded probe run per Execute call.
type Executor struct {
	launcher  Launcher
	enforcer  Enforcer
	logger    *slog.Logger
	callbacks Callbacks
	capture   bool
	verbose   bool
}

// New creates an Executor with the given configuration.
func New(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = OSLauncher{}
	}
	enforcer := cfg.Enforcer
	if enforcer == nil {
		enforcer = NewWatchdog(logger)
	}
	return &Executor{
		launcher:  launcher,
		enforcer:  enforcer,
		logger:    logger,
		callbacks: cfg.Callbacks,
		capture:   cfg.CaptureStderr,
		verbose:   cfg.Verbose,
	}
}

// NewEnforcer builds the enforcer for strategy.
func NewEnforcer(strategy Strategy, logger *slog.Logger) Enforcer {
	if strategy == StrategyPoll {
		return NewPoller(logger, DefaultPollBackoff())
	}
	return NewWatchdog(logger)
}

// Execute launches the probe, bounds it to start+Timeout and returns the
// outcome. start must come from time.Now. Execute never fails: launch, wait
// and kill problems are recorded in the outcome.
func (e *Executor) Execute(ctx context.Context, spec RunSpec, cycle uint64, start time.Time) outcome.Outcome {
	o := outcome.New(cycle, start)
	o.AppName = spec.AppName
	o.TestName = spec.TestName
	o.RoutingKey = spec.RoutingKey
	o.Command = spec.Command()
	o.Interval = spec.Interval
	o.Timeout = spec.Timeout

	ctx = logging.ContextAttrs(ctx,
		slog.String("run_id", o.RunID.String()),
		slog.Uint64("cycle", cycle),
	)

	if err := ctx.Err(); err != nil {
		o.Reason = outcome.Cancelled
		o.Err = "not started: " + err.Error()
		return o
	}

	cmd := process.Command{Argv: spec.Argv, Env: spec.Env, Dir: spec.Dir}
	var stderr *logging.OutputHandler
	if e.capture {
		stderr = logging.NewOutputHandler(ctx, e.logger, "stderr", e.verbose)
		cmd.Stderr = stderr
	}

	p, err := e.launcher.Launch(cmd)
	if err != nil {
		o.Duration = time.Since(start)
		o.Reason = outcome.LaunchError
		o.Err = err.Error()
		e.logger.ErrorContext(ctx, "probe_launch_failed", "command", o.Command, "error", err)
		return o
	}
	e.logger.DebugContext(ctx, "probe_started", "pid", p.Pid(), "command", o.Command)
	if e.callbacks.OnStart != nil {
		e.callbacks.OnStart(cycle, p.Pid())
	}

	v := e.enforcer.Enforce(ctx, p, start.Add(spec.Timeout), start.Add(spec.Interval))
	o.Duration = time.Since(start)

	if v.Reaped && v.Status.SweepErr != nil {
		e.logger.WarnContext(ctx, "process_group_sweep_failed", "pid", p.Pid(), "error", v.Status.SweepErr)
	}

	classify(&o, v)

	if stderr != nil {
		stderr.Flush()
		if o.Failed() {
			if lines := stderr.RecentLines(recentOutputLines); len(lines) > 0 {
				e.logger.WarnContext(ctx, "probe_failed_output", "lines", lines)
			}
		}
	}
	if o.Reason == outcome.WaitError {
		e.logger.ErrorContext(ctx, "probe_wait_failed", "pid", p.Pid(), "error", o.Err)
	}
	return o
}

// classify maps a verdict to a reason. The reaped status is authoritative:
// a probe that exited normally is Exited even if the deadline had passed.
func classify(o *outcome.Outcome, v Verdict) {
	interrupted := outcome.KilledByTimeout
	if v.Cancelled {
		interrupted = outcome.Cancelled
	}

	switch {
	case v.KillErr != nil:
		o.Reason = interrupted
		o.KillFailed = true
		o.Err = v.KillErr.Error()
		if !v.Reaped {
			o.Err += " (probe still running)"
		}
	case v.Status.Err != nil:
		o.Reason = outcome.WaitError
		o.Err = v.Status.Err.Error()
	case v.Killed && v.Status.Signaled:
		o.Reason = interrupted
		o.Signal = v.Status.SignalName()
	default:
		o.SetExitCode(v.Status.ExitCode)
		o.Signal = v.Status.SignalName()
	}
}
