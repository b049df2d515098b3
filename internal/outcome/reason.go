package outcome

import "fmt"

// Reason tags how a probe run ended.
type Reason int

const (
	// Exited means the probe exited on its own; the exit code is set.
	Exited Reason = iota

	// KilledByTimeout means the probe outlived its deadline and the runner
	// terminated it.
	KilledByTimeout

	// WaitError means collecting the probe's exit status failed.
	WaitError

	// LaunchError means the probe could not be started.
	LaunchError

	// Cancelled means the runner was shutting down and terminated the probe
	// before its deadline.
	Cancelled
)

var reasonNames = [...]string{
	Exited:          "exited",
	KilledByTimeout: "killed_by_timeout",
	WaitError:       "wait_error",
	LaunchError:     "launch_error",
	Cancelled:       "cancelled",
}

// Reasons lists every reason, in declaration order.
func Reasons() []Reason {
	return []Reason{Exited, KilledByTimeout, WaitError, LaunchError, Cancelled}
}

// String returns the snake_case name used in logs and metric labels.
func (r Reason) String() string {
	if r < 0 || int(r) >= len(reasonNames) {
		return "unknown"
	}
	return reasonNames[r]
}

func (r Reason) MarshalText() ([]byte, error) {
	if r < 0 || int(r) >= len(reasonNames) {
		return nil, fmt.Errorf("unknown reason %d", int(r))
	}
	return []byte(reasonNames[r]), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	for i, name := range reasonNames {
		if name == string(b) {
			*r = Reason(i)
			return nil
		}
	}
	return fmt.Errorf("unknown reason %q", b)
}
