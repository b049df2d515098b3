// Package orchestrator runs a monitor: the cadence loop and the wiring of
// every component around it.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/supervisor"
)

// Phase is what the scheduler is doing right now.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseReporting
	PhaseSleeping
	PhaseStopped
)

var phaseNames = [...]string{
	PhaseIdle:      "idle",
	PhaseRunning:   "running",
	PhaseReporting: "reporting",
	PhaseSleeping:  "sleeping",
	PhaseStopped:   "stopped",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Executor runs one bounded probe cycle. *supervisor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, spec supervisor.RunSpec, cycle uint64, start time.Time) outcome.Outcome
}

// Sink receives every outcome and may enrich it, e.g. with artifact URLs.
type Sink interface {
	Deliver(ctx context.Context, o outcome.Outcome) outcome.Outcome
}

// SchedulerConfig holds configuration for creating a Scheduler.
type SchedulerConfig struct {
	Spec     supervisor.RunSpec
	Executor Executor
	Sink     Sink // may be nil
	Logger   *slog.Logger

	// MaxCycles stops the loop after that many cycles; 0 runs forever.
	MaxCycles uint64

	// StartJitter delays the first cycle by a per-monitor offset in
	// [0, StartJitter).
	StartJitter time.Duration
	Jitter      *supervisor.JitterSource
	JitterKey   string

	// OnPhase is told about every phase change. until is the wake time
	// when sleeping.
	OnPhase func(p Phase, until time.Time)

	// OnOverrun is called when a cycle leaves no time to sleep.
	OnOverrun func(o outcome.Outcome, elapsed time.Duration)

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Scheduler holds a fixed start-to-start cadence across variable-length
// runs. Each cycle's sleep is computed from that cycle's own start, so an
// overrun delays only the next cycle and drift never accumulates.
type Scheduler struct {
	spec      supervisor.RunSpec
	executor  Executor
	sink      Sink
	logger    *slog.Logger
	maxCycles uint64

	startJitter time.Duration
	jitter      *supervisor.JitterSource
	jitterKey   string

	onPhase   func(Phase, time.Time)
	onOverrun func(outcome.Outcome, time.Duration)

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewScheduler creates a Scheduler with the given configuration.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	s := &Scheduler{
		spec:        cfg.Spec,
		executor:    cfg.Executor,
		sink:        cfg.Sink,
		logger:      cfg.Logger,
		maxCycles:   cfg.MaxCycles,
		startJitter: cfg.StartJitter,
		jitter:      cfg.Jitter,
		jitterKey:   cfg.JitterKey,
		onPhase:     cfg.OnPhase,
		onOverrun:   cfg.OnOverrun,
		now:         cfg.Now,
		sleep:       cfg.Sleep,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.sleep == nil {
		s.sleep = sleepContext
	}
	if s.jitter == nil {
		s.jitter = supervisor.NewJitterSource(0)
	}
	return s
}

// Run executes cycles until ctx is cancelled, returning ctx.Err(), or until
// MaxCycles have completed, returning nil. Probe failures never end the
// loop.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.setPhase(PhaseStopped, time.Time{})

	if err := s.waitJitter(ctx); err != nil {
		return err
	}

	for cycle := uint64(1); ; cycle++ {
		if err := ctx.Err(); err != nil {
			s.logger.Info("scheduler_stopped", "cycles", cycle-1, "reason", err.Error())
			return err
		}

		start := s.now()
		s.setPhase(PhaseRunning, time.Time{})
		s.logger.Debug("cycle_started", "cycle", cycle)

		o := s.executor.Execute(ctx, s.spec, cycle, start)
		if s.now().Sub(start) >= s.spec.Interval {
			o.Overrun = true
		}

		s.setPhase(PhaseReporting, time.Time{})
		if s.sink != nil {
			o = s.sink.Deliver(ctx, o)
		}

		if s.maxCycles > 0 && cycle >= s.maxCycles {
			s.logger.Info("max_cycles_reached", "cycles", cycle)
			return nil
		}
		if err := ctx.Err(); err != nil {
			s.logger.Info("scheduler_stopped", "cycles", cycle, "reason", err.Error())
			return err
		}

		elapsed := s.now().Sub(start)
		if elapsed >= s.spec.Interval {
			s.logger.Warn("cycle_overrun",
				"cycle", cycle,
				"elapsed", elapsed.String(),
				"interval", s.spec.Interval.String(),
			)
			if s.onOverrun != nil {
				s.onOverrun(o, elapsed)
			}
			continue
		}

		wait := s.spec.Interval - elapsed
		s.setPhase(PhaseSleeping, s.now().Add(wait))
		if err := s.sleep(ctx, wait); err != nil {
			s.logger.Info("scheduler_stopped", "cycles", cycle, "reason", err.Error())
			return err
		}
	}
}

func (s *Scheduler) waitJitter(ctx context.Context) error {
	if s.startJitter <= 0 {
		return nil
	}
	offset := s.jitter.Offset(s.jitterKey, s.startJitter)
	if offset <= 0 {
		return nil
	}
	s.logger.Info("start_jitter", "delay", offset.String())
	s.setPhase(PhaseSleeping, s.now().Add(offset))
	return s.sleep(ctx, offset)
}

func (s *Scheduler) setPhase(p Phase, until time.Time) {
	if s.onPhase != nil {
		s.onPhase(p, until)
	}
}

// sleepContext sleeps for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
