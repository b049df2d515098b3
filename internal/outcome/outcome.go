// Package outcome defines the record produced for every probe run.
package outcome

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// NoExitCode is reported on the wire when a run has no exit code.
const NoExitCode = -1

// Outcome is the result of one probe run. It is a plain value: it is built
// by the executor, enriched by the artifact hook and then handed to every
// reporter.
type Outcome struct {
	RunID      uuid.UUID `json:"run_id"`
	Cycle      uint64    `json:"cycle"`
	AppName    string    `json:"app"`
	TestName   string    `json:"name"`
	RoutingKey string    `json:"routing_key"`
	Command    string    `json:"command"`

	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration_ns"`
	Interval time.Duration `json:"interval_ns"`
	Timeout  time.Duration `json:"timeout_ns"`

	Reason Reason `json:"reason"`
	// ExitCode is nil unless Reason is Exited.
	ExitCode   *int   `json:"exit_code"`
	Signal     string `json:"signal,omitempty"`
	KillFailed bool   `json:"kill_failed,omitempty"`
	Err        string `json:"error,omitempty"`

	// Overrun is set by the scheduler when the run used its whole interval.
	Overrun bool `json:"overrun,omitempty"`

	ArtifactURL string `json:"artifact_url,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// New returns an outcome with a fresh run id.
func New(cycle uint64, started time.Time) Outcome {
	return Outcome{
		RunID:   uuid.New(),
		Cycle:   cycle,
		Started: started,
	}
}

// Failed reports whether the run should trigger artifact collection:
// a non-zero exit, a timeout kill, or any launch or wait problem.
func (o Outcome) Failed() bool {
	if o.Reason != Exited {
		return true
	}
	return o.ExitCode == nil || *o.ExitCode != 0
}

// Archivable reports whether the failure hook should collect artifacts for
// the run. A cancelled run failed only because the runner was stopped.
func (o Outcome) Archivable() bool {
	return o.Failed() && o.Reason != Cancelled
}

// RetCode returns the exit code, or NoExitCode when there is none.
func (o Outcome) RetCode() int {
	if o.ExitCode == nil {
		return NoExitCode
	}
	return *o.ExitCode
}

// SetExitCode records code and marks the run as Exited.
func (o *Outcome) SetExitCode(code int) {
	o.Reason = Exited
	o.ExitCode = &code
}

// Summary renders the one-line human description logged per cycle.
func (o Outcome) Summary() string {
	s := fmt.Sprintf("run %d took %dms: %s", o.Cycle, o.Duration.Milliseconds(), o.Reason)
	if o.ExitCode != nil {
		s += fmt.Sprintf(" (exit %d)", *o.ExitCode)
	}
	if o.Signal != "" {
		s += " signal=" + o.Signal
	}
	if o.KillFailed {
		s += " kill_failed"
	}
	if o.Overrun {
		s += " overrun"
	}
	if o.Err != "" {
		s += ": " + o.Err
	}
	return s
}
