//go:build !linux

package process

import (
	"errors"
	"os"
	"syscall"
)

// sysProcAttr puts the probe in its own process group. Pdeathsig is not
// available outside Linux.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// canHoldGroup is false: without waitid(WNOWAIT) the leader may be reaped
// at any time, so its pid cannot be trusted to name the process group.
const canHoldGroup = false

// waitExited cannot observe an exit without reaping here.
func waitExited(*os.Process) bool { return false }

// alive probes with signal 0. A zombie still answers, so an exited probe
// reads as alive until the reaper runs; Terminate then finds nothing to kill.
func alive(p *os.Process) (bool, error) {
	err := p.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false, nil
	}
	return false, err
}
