package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/process"
)

// Process is the part of a probe handle the enforcers need.
// *process.Handle implements it.
type Process interface {
	Pid() int
	Done() <-chan struct{}
	TryWait() (process.Status, bool)
	Wait() process.Status
	Alive() (bool, error)
	Terminate() error
}

// Verdict is what an enforcer observed for one run.
type Verdict struct {
	Status process.Status
	// Reaped is false only when a kill failed and the probe was still
	// running when the slot ended.
	Reaped bool
	// TimedOut is set when the deadline passed with the probe unreaped.
	TimedOut bool
	// Cancelled is set when shutdown interrupted the run.
	Cancelled bool
	// Killed is set when a termination signal was delivered.
	Killed  bool
	KillErr error
}

// Enforcer bounds the runtime of a launched probe. Enforce returns once the
// probe has been reaped, or once slotEnd passes after a failed kill.
// Implementations send at most one termination signal per call.
type Enforcer interface {
	Enforce(ctx context.Context, p Process, deadline, slotEnd time.Time) Verdict
}

// Watchdog races a timer against the probe. The calling goroutine blocks on
// the reap; a single watchdog goroutine wakes at the deadline and kills the
// probe if it is still alive. The watchdog is joined before Enforce returns.
type Watchdog struct {
	logger *slog.Logger
}

func NewWatchdog(logger *slog.Logger) *Watchdog {
	return &Watchdog{logger: logger}
}

func (w *Watchdog) Enforce(ctx context.Context, p Process, deadline, slotEnd time.Time) Verdict {
	stop := make(chan struct{})
	fired := make(chan Verdict, 1)
	go func() {
		fired <- w.watch(ctx, p, deadline, stop)
	}()

	var v Verdict
	select {
	case <-p.Done():
		close(stop)
		v = <-fired
	case v = <-fired:
	}
	return settle(p, v, slotEnd)
}

func (w *Watchdog) watch(ctx context.Context, p Process, deadline time.Time, stop <-chan struct{}) Verdict {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	var v Verdict
	select {
	case <-stop:
		return v
	case <-timer.C:
		v.TimedOut = true
	case <-ctx.Done():
		v.Cancelled = true
	}

	select {
	case <-p.Done():
		return v
	default:
	}
	terminate(ctx, w.logger, p, &v)
	return v
}

// Poller enforces the timeout from the calling goroutine alone, checking
// the probe with non-blocking waits between exponentially growing sleeps.
// Every sleep is capped by the time left to the deadline and to the end of
// the slot.
type Poller struct {
	logger  *slog.Logger
	backoff BackoffConfig
}

func NewPoller(logger *slog.Logger, cfg BackoffConfig) *Poller {
	return &Poller{logger: logger, backoff: cfg}
}

func (pl *Poller) Enforce(ctx context.Context, p Process, deadline, slotEnd time.Time) Verdict {
	b := NewBackoff(0, pl.backoff)
	for {
		if st, ok := p.TryWait(); ok {
			return Verdict{Status: st, Reaped: true}
		}

		now := time.Now()
		cancelled := ctx.Err() != nil
		if cancelled || !now.Before(deadline) {
			v := Verdict{TimedOut: !cancelled, Cancelled: cancelled}
			terminate(ctx, pl.logger, p, &v)
			return settle(p, v, slotEnd)
		}

		d := capDelay(b.Next(), deadline.Sub(now), slotEnd.Sub(now))
		pl.sleep(ctx, d)
	}
}

func (pl *Poller) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// terminate kills p unless it is already gone. A liveness check that fails
// is treated as alive: the kill is scoped to our own child, so the worst
// case is ErrAlreadyExited.
func terminate(ctx context.Context, logger *slog.Logger, p Process, v *Verdict) {
	alive, err := p.Alive()
	if err != nil {
		logger.WarnContext(ctx, "liveness_check_failed", "pid", p.Pid(), "error", err)
		alive = true
	}
	if !alive {
		return
	}

	err = p.Terminate()
	switch {
	case err == nil:
		v.Killed = true
		logger.InfoContext(ctx, "probe_killed",
			"pid", p.Pid(),
			"timed_out", v.TimedOut,
			"cancelled", v.Cancelled,
		)
	case errors.Is(err, process.ErrAlreadyExited):
	default:
		v.KillErr = err
		logger.ErrorContext(ctx, "kill_failed", "pid", p.Pid(), "error", err)
	}
}

// settle waits for the reap. After a failed kill the probe may never exit,
// so the wait is bounded by the end of the slot.
func settle(p Process, v Verdict, slotEnd time.Time) Verdict {
	if v.KillErr == nil {
		v.Status = p.Wait()
		v.Reaped = true
		return v
	}

	timer := time.NewTimer(time.Until(slotEnd))
	defer timer.Stop()
	select {
	case <-p.Done():
		v.Status = p.Wait()
		v.Reaped = true
	case <-timer.C:
	}
	return v
}
