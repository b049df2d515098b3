package process

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr puts the probe in its own process group. Pdeathsig kills the
// direct child if the runner dies without cleaning up.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
}

// canHoldGroup reports that waitExited can observe an exit without reaping.
const canHoldGroup = true

// waitExited blocks until the child has exited but leaves it unreaped. It
// reports false if the exit could not be observed.
func waitExited(p *os.Process) bool {
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, p.Pid, &info, unix.WEXITED|unix.WNOWAIT, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		return err == nil
	}
}

// alive peeks at the child with waitid(WNOWAIT), which reports an exit
// without consuming it, so the reaper still collects the status.
func alive(p *os.Process) (bool, error) {
	for {
		var info unix.Siginfo
		err := unix.Waitid(unix.P_PID, p.Pid, &info, unix.WEXITED|unix.WNOHANG|unix.WNOWAIT, nil)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.ECHILD):
			// Reaped between the done check and waitid.
			return false, nil
		case err != nil:
			return false, fmt.Errorf("waitid pid %d: %w", p.Pid, err)
		}
		// WNOHANG leaves info zeroed while the child is still running.
		return info.Signo == 0, nil
	}
}
