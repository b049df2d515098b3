package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Status is the reaped state of a probe.
type Status struct {
	// ExitCode follows the shell convention: the exit status for a normal
	// exit, 128+signal for a signal death, -1 when unknown.
	ExitCode int
	Exited   bool
	Signaled bool
	Signal   syscall.Signal
	// Err is set when the exit status could not be collected.
	Err error
	// Ended is when the reaper observed the exit.
	Ended time.Time
	// SweepErr is set when the leftovers in the probe's process group could
	// not be killed after the leader exited.
	SweepErr error
}

// SignalName returns the name of the fatal signal, or "" for normal exits.
func (s Status) SignalName() string {
	if !s.Signaled {
		return ""
	}
	return s.Signal.String()
}

// Handle is a running or reaped probe.
type Handle struct {
	cmd     *exec.Cmd
	argv    []string
	started time.Time

	done   chan struct{}
	status Status

	// mu guards exited and groupHeld. groupHeld means the leader is known
	// to be unreaped, so its pid still names the probe's process group.
	mu        sync.Mutex
	exited    bool
	groupHeld bool

	signals atomic.Int32
}

func (h *Handle) reap() {
	var sweepErr error
	observed := waitExited(h.cmd.Process)

	h.mu.Lock()
	if observed {
		h.exited = true
		// The leader is a zombie until Wait, so the group id is not reused yet.
		sweepErr = killGroup(h.Pid())
	}
	h.groupHeld = false
	h.mu.Unlock()

	err := h.cmd.Wait()

	h.mu.Lock()
	h.exited = true
	h.mu.Unlock()

	h.status = statusFrom(h.cmd.ProcessState, err)
	h.status.SweepErr = sweepErr
	close(h.done)
}

func statusFrom(state *os.ProcessState, err error) Status {
	st := Status{ExitCode: -1, Ended: time.Now()}
	if state == nil {
		if err == nil {
			err = errors.New("no process state")
		}
		st.Err = fmt.Errorf("wait: %w", err)
		return st
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		st.Signaled = true
		st.Signal = ws.Signal()
		st.ExitCode = 128 + int(ws.Signal())
		return st
	}
	st.Exited = true
	st.ExitCode = state.ExitCode()
	// An *exec.ExitError only restates a non-zero exit and ErrWaitDelay only
	// means an orphan kept the output pipes open; neither loses the status.
	return st
}

// Pid returns the probe's process id.
func (h *Handle) Pid() int { return h.cmd.Process.Pid }

// Argv returns the command line the probe was started with.
func (h *Handle) Argv() []string { return h.argv }

// Command returns the command line joined with spaces.
func (h *Handle) Command() string { return strings.Join(h.argv, " ") }

// Started returns the time Launch returned.
func (h *Handle) Started() time.Time { return h.started }

// Done is closed once the probe has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// TryWait returns the reaped status without blocking.
func (h *Handle) TryWait() (Status, bool) {
	select {
	case <-h.done:
		return h.status, true
	default:
		return Status{}, false
	}
}

// Wait blocks until the probe has been reaped.
func (h *Handle) Wait() Status {
	<-h.done
	return h.status
}

// Alive reports whether the probe is still running. An exited but not yet
// reaped probe is not alive. Alive never reaps.
func (h *Handle) Alive() (bool, error) {
	select {
	case <-h.done:
		return false, nil
	default:
	}
	return alive(h.cmd.Process)
}

// Terminate sends SIGKILL to the probe. While the leader is unreaped the
// whole process group is killed, so children holding the output pipes die
// with it. Otherwise only the leader is signalled through its os.Process
// handle, which refuses to signal a reaped child. ErrAlreadyExited means
// there was nothing to kill.
func (h *Handle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.exited {
		return ErrAlreadyExited
	}
	var err error
	if h.groupHeld {
		err = syscall.Kill(-h.Pid(), syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return ErrAlreadyExited
		}
	} else {
		err = h.cmd.Process.Kill()
		if errors.Is(err, os.ErrProcessDone) {
			return ErrAlreadyExited
		}
	}
	if err != nil {
		return fmt.Errorf("kill pid %d: %w", h.Pid(), err)
	}
	h.signals.Add(1)
	return nil
}

// Signals returns how many termination signals were delivered.
func (h *Handle) Signals() int { return int(h.signals.Load()) }
