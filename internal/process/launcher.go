// Package process launches probe commands and tracks the resulting child.
//
// A launched probe is represented by a Handle. The handle owns a reaper
// goroutine that collects the exit status exactly once; every other
// operation (liveness checks, termination) is safe to call concurrently with
// it and never reaps.
package process

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultWaitDelay bounds how long the reaper waits for the probe's output
// pipes to close after the probe itself has exited.
const DefaultWaitDelay = 2 * time.Second

var (
	// ErrEmptyCommand is returned when a probe command has no tokens.
	ErrEmptyCommand = errors.New("probe command is empty")

	// ErrAlreadyExited is returned by Terminate when the probe has already
	// been reaped. Callers treat it as a no-op.
	ErrAlreadyExited = errors.New("process already exited")
)

// LaunchError reports a probe that could not be started.
type LaunchError struct {
	Argv []string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %q: %v", strings.Join(e.Argv, " "), e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Tokenize splits a probe command on runs of whitespace. There is no shell
// quoting: `sh -c "exit 3"` yields the four tokens sh, -c, "exit and 3".
// Use an explicit argv when arguments contain spaces.
func Tokenize(command string) ([]string, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}
	return argv, nil
}

// Command describes one probe invocation.
type Command struct {
	Argv []string
	// Env replaces the environment when non-nil.
	Env []string
	Dir string
	// Stdout and Stderr default to the runner's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// Launcher starts probes. The zero value is ready to use.
type Launcher struct {
	WaitDelay time.Duration
}

// Launch starts c and returns its handle. The probe runs in its own process
// group. On Linux the group is killed with the probe on Terminate, and
// whatever is left in it is killed as soon as the leader exits.
func (l Launcher) Launch(c Command) (*Handle, error) {
	if len(c.Argv) == 0 {
		return nil, &LaunchError{Err: ErrEmptyCommand}
	}

	cmd := exec.Command(c.Argv[0], c.Argv[1:]...)
	cmd.Env = c.Env
	cmd.Dir = c.Dir
	cmd.Stdin = nil
	cmd.Stdout = writerOr(c.Stdout, os.Stdout)
	cmd.Stderr = writerOr(c.Stderr, os.Stderr)
	cmd.SysProcAttr = sysProcAttr()
	cmd.WaitDelay = l.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = DefaultWaitDelay
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Argv: append([]string(nil), c.Argv...), Err: err}
	}

	h := &Handle{
		cmd:     cmd,
		argv:    append([]string(nil), c.Argv...),
		started: time.Now(),
		done:    make(chan struct{}),

		groupHeld: canHoldGroup,
	}
	go h.reap()
	return h, nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
