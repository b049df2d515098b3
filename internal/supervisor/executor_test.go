package supervisor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
	"github.com/randomizedcoder/go-monitor-runner/internal/process"
)

func testSpec(argv ...string) RunSpec {
	return RunSpec{
		AppName:    "shop",
		TestName:   "checkout",
		RoutingKey: "monitor-pilot",
		Argv:       argv,
		Interval:   time.Second,
		Timeout:    500 * time.Millisecond,
	}
}

func TestExecute_ExitZero(t *testing.T) {
	bin := lookPath(t, "true")
	e := New(Config{Logger: newTestLogger()})

	start := time.Now()
	o := e.Execute(context.Background(), testSpec(bin), 1, start)

	if o.Reason != outcome.Exited || o.RetCode() != 0 {
		t.Fatalf("outcome = %s, want exited 0", o.Summary())
	}
	if o.Failed() {
		t.Error("Failed() = true for exit 0")
	}
	if o.Duration <= 0 || o.Duration > o.Timeout {
		t.Errorf("Duration = %v, want (0, timeout]", o.Duration)
	}
	if o.AppName != "shop" || o.TestName != "checkout" || o.RoutingKey != "monitor-pilot" || o.Cycle != 1 {
		t.Errorf("labels not carried: %+v", o)
	}
	if o.Command != bin {
		t.Errorf("Command = %q, want %q", o.Command, bin)
	}
}

func TestExecute_NonZeroExit(t *testing.T) {
	sh := lookPath(t, "sh")
	e := New(Config{Logger: newTestLogger()})

	o := e.Execute(context.Background(), testSpec(sh, "-c", "exit 3"), 1, time.Now())

	if o.Reason != outcome.Exited || o.RetCode() != 3 || !o.Failed() {
		t.Errorf("outcome = %s, want failed exit 3", o.Summary())
	}
}

func TestExecute_QuickProbeWithinTimeout(t *testing.T) {
	sleep := lookPath(t, "sleep")
	e := New(Config{Logger: newTestLogger()})

	o := e.Execute(context.Background(), testSpec(sleep, "0.1"), 1, time.Now())

	if o.Reason != outcome.Exited || o.RetCode() != 0 {
		t.Fatalf("outcome = %s, want exited 0", o.Summary())
	}
	if o.Duration < 100*time.Millisecond {
		t.Errorf("Duration = %v, want >= 100ms", o.Duration)
	}
}

func TestExecute_Timeout(t *testing.T) {
	sleep := lookPath(t, "sleep")

	for _, strategy := range []Strategy{StrategyWatchdog, StrategyPoll} {
		t.Run(strategy.String(), func(t *testing.T) {
			logger := newTestLogger()
			e := New(Config{Logger: logger, Enforcer: NewEnforcer(strategy, logger)})
			spec := testSpec(sleep, "30")
			spec.Timeout = 150 * time.Millisecond

			o := e.Execute(context.Background(), spec, 2, time.Now())

			if o.Reason != outcome.KilledByTimeout {
				t.Fatalf("outcome = %s, want killed_by_timeout", o.Summary())
			}
			if o.ExitCode != nil || o.RetCode() != outcome.NoExitCode {
				t.Errorf("ExitCode = %v, want nil", o.ExitCode)
			}
			if o.Signal != syscall.SIGKILL.String() {
				t.Errorf("Signal = %q, want %q", o.Signal, syscall.SIGKILL.String())
			}
			if o.Duration < 150*time.Millisecond || o.Duration > time.Second {
				t.Errorf("Duration = %v, want about the timeout", o.Duration)
			}
			if !o.Failed() {
				t.Error("Failed() = false for a timeout")
			}
		})
	}
}

func TestExecute_LaunchError(t *testing.T) {
	e := New(Config{Logger: newTestLogger()})

	o := e.Execute(context.Background(), testSpec("/no/such/probe"), 3, time.Now())

	if o.Reason != outcome.LaunchError {
		t.Fatalf("Reason = %v, want launch_error", o.Reason)
	}
	if o.ExitCode != nil || !strings.Contains(o.Err, "/no/such/probe") {
		t.Errorf("outcome = %+v", o)
	}
}

func TestExecute_CancelledBeforeStart(t *testing.T) {
	launched := false
	e := New(Config{
		Logger: newTestLogger(),
		Launcher: launchFunc(func(process.Command) (Process, error) {
			launched = true
			return nil, errors.New("unreachable")
		}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := e.Execute(ctx, testSpec("true"), 1, time.Now())

	if o.Reason != outcome.Cancelled || launched {
		t.Errorf("reason=%v launched=%v, want cancelled without launch", o.Reason, launched)
	}
}

func TestExecute_KillFailed(t *testing.T) {
	p := newFakeProc(-1, 0)
	p.killErr = errFakeKill
	e := New(Config{Logger: newTestLogger(), Launcher: fakeLauncher(p)})

	spec := testSpec("fake")
	spec.Timeout = 10 * time.Millisecond
	spec.Interval = 40 * time.Millisecond
	o := e.Execute(context.Background(), spec, 1, time.Now())

	if o.Reason != outcome.KilledByTimeout || !o.KillFailed {
		t.Fatalf("outcome = %s, want killed_by_timeout with kill_failed", o.Summary())
	}
	if !strings.Contains(o.Err, "still running") {
		t.Errorf("Err = %q, want still running note", o.Err)
	}
}

func TestExecute_OnStartCallback(t *testing.T) {
	p := newFakeProc(0, 0)
	var mu sync.Mutex
	var gotCycle uint64
	var gotPid int
	e := New(Config{
		Logger:   newTestLogger(),
		Launcher: fakeLauncher(p),
		Callbacks: Callbacks{OnStart: func(cycle uint64, pid int) {
			mu.Lock()
			defer mu.Unlock()
			gotCycle, gotPid = cycle, pid
		}},
	})

	e.Execute(context.Background(), testSpec("fake"), 9, time.Now())

	mu.Lock()
	defer mu.Unlock()
	if gotCycle != 9 || gotPid != 4242 {
		t.Errorf("OnStart(%d, %d), want (9, 4242)", gotCycle, gotPid)
	}
}

func TestExecute_CaptureStderrOnFailure(t *testing.T) {
	sh := lookPath(t, "sh")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	e := New(Config{Logger: logger, CaptureStderr: true})

	o := e.Execute(context.Background(), testSpec(sh, "-c", "echo boom-marker >&2; exit 1"), 1, time.Now())

	if o.RetCode() != 1 {
		t.Fatalf("outcome = %s, want exit 1", o.Summary())
	}
	out := buf.String()
	if !strings.Contains(out, "probe_failed_output") || !strings.Contains(out, "boom-marker") {
		t.Errorf("log output missing captured stderr:\n%s", out)
	}
}

func TestClassify(t *testing.T) {
	signaled := process.Status{Signaled: true, Signal: syscall.SIGKILL, ExitCode: 137}
	testCases := []struct {
		name       string
		v          Verdict
		wantReason outcome.Reason
		wantCode   int
		wantSignal string
	}{
		{
			name:       "natural exit",
			v:          Verdict{Reaped: true, Status: process.Status{Exited: true, ExitCode: 0}},
			wantReason: outcome.Exited,
			wantCode:   0,
		},
		{
			name:       "exit wins over a late kill",
			v:          Verdict{Reaped: true, Killed: true, TimedOut: true, Status: process.Status{Exited: true, ExitCode: 0}},
			wantReason: outcome.Exited,
			wantCode:   0,
		},
		{
			name:       "killed at deadline",
			v:          Verdict{Reaped: true, Killed: true, TimedOut: true, Status: signaled},
			wantReason: outcome.KilledByTimeout,
			wantCode:   outcome.NoExitCode,
			wantSignal: "killed",
		},
		{
			name:       "killed on shutdown",
			v:          Verdict{Reaped: true, Killed: true, Cancelled: true, Status: signaled},
			wantReason: outcome.Cancelled,
			wantCode:   outcome.NoExitCode,
			wantSignal: "killed",
		},
		{
			name:       "signal from elsewhere",
			v:          Verdict{Reaped: true, Status: process.Status{Signaled: true, Signal: syscall.SIGTERM, ExitCode: 143}},
			wantReason: outcome.Exited,
			wantCode:   143,
			wantSignal: "terminated",
		},
		{
			name:       "wait error",
			v:          Verdict{Reaped: true, Status: process.Status{ExitCode: -1, Err: errors.New("wait: boom")}},
			wantReason: outcome.WaitError,
			wantCode:   outcome.NoExitCode,
		},
		{
			name:       "kill failed",
			v:          Verdict{TimedOut: true, KillErr: errFakeKill},
			wantReason: outcome.KilledByTimeout,
			wantCode:   outcome.NoExitCode,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var o outcome.Outcome
			classify(&o, tc.v)
			if o.Reason != tc.wantReason {
				t.Errorf("Reason = %v, want %v", o.Reason, tc.wantReason)
			}
			if o.RetCode() != tc.wantCode {
				t.Errorf("RetCode() = %d, want %d", o.RetCode(), tc.wantCode)
			}
			if o.Signal != tc.wantSignal {
				t.Errorf("Signal = %q, want %q", o.Signal, tc.wantSignal)
			}
		})
	}
}
