package process

import (
	"errors"
	"fmt"
	"syscall"
)

// killGroup sends SIGKILL to every member of process group pgid. An empty
// group is not an error.
func killGroup(pgid int) error {
	if pgid <= 1 {
		return fmt.Errorf("refusing to signal process group %d", pgid)
	}
	err := syscall.Kill(-pgid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("kill process group %d: %w", pgid, err)
}
