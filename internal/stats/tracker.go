// Package stats aggregates probe outcomes over the life of a runner.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// Tracker accumulates outcomes. Safe for concurrent use.
type Tracker struct {
	mu sync.Mutex

	started time.Time

	cycles              uint64
	failures            uint64
	consecutiveFailures uint64
	maxConsecutive      uint64
	killFailures        uint64
	overruns            uint64
	archiveErrors       uint64
	reportErrors        uint64
	byReason            map[outcome.Reason]uint64
	exitCodes           map[int]uint64

	// durations in nanoseconds
	digest      *tdigest.TDigest
	minDuration time.Duration
	maxDuration time.Duration

	last    outcome.Outcome
	hasLast bool
}

// Snapshot is a point-in-time copy of a Tracker.
type Snapshot struct {
	Started time.Time

	Cycles              uint64
	Failures            uint64
	ConsecutiveFailures uint64
	MaxConsecutive      uint64
	KillFailures        uint64
	Overruns            uint64
	ArchiveErrors       uint64
	ReportErrors        uint64
	ByReason            map[outcome.Reason]uint64
	ExitCodes           map[int]uint64

	DurationMin time.Duration
	DurationMax time.Duration
	DurationP50 time.Duration
	DurationP95 time.Duration
	DurationP99 time.Duration

	Last    outcome.Outcome
	HasLast bool
}

// SuccessRatio is the share of cycles that did not fail, or 0 before the
// first cycle.
func (s Snapshot) SuccessRatio() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Cycles-s.Failures) / float64(s.Cycles)
}

// NewTracker creates a tracker whose run started at now.
func NewTracker(now time.Time) *Tracker {
	return &Tracker{
		started:   now,
		byReason:  make(map[outcome.Reason]uint64),
		exitCodes: make(map[int]uint64),
		digest:    tdigest.NewWithCompression(100),
	}
}

// Record adds one completed cycle.
func (t *Tracker) Record(o outcome.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cycles++
	t.byReason[o.Reason]++
	if o.ExitCode != nil {
		t.exitCodes[*o.ExitCode]++
	}
	if o.KillFailed {
		t.killFailures++
	}

	if o.Failed() {
		t.failures++
		t.consecutiveFailures++
		if t.consecutiveFailures > t.maxConsecutive {
			t.maxConsecutive = t.consecutiveFailures
		}
	} else {
		t.consecutiveFailures = 0
	}

	// Launch failures never ran, so their duration says nothing.
	if o.Reason != outcome.LaunchError {
		t.digest.Add(float64(o.Duration.Nanoseconds()), 1)
		if t.digest.Count() == 1 || o.Duration < t.minDuration {
			t.minDuration = o.Duration
		}
		if o.Duration > t.maxDuration {
			t.maxDuration = o.Duration
		}
	}

	t.last = o
	t.hasLast = true
}

// RecordOverrun counts a cycle that used up its whole interval.
func (t *Tracker) RecordOverrun() {
	t.mu.Lock()
	t.overruns++
	t.mu.Unlock()
}

// RecordArchiveError counts a failed artifact archive.
func (t *Tracker) RecordArchiveError() {
	t.mu.Lock()
	t.archiveErrors++
	t.mu.Unlock()
}

// RecordReportError counts a failed report delivery.
func (t *Tracker) RecordReportError() {
	t.mu.Lock()
	t.reportErrors++
	t.mu.Unlock()
}

// Quantile returns the q-quantile of recorded durations, or 0 when none.
func (t *Tracker) Quantile(q float64) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantileLocked(q)
}

func (t *Tracker) quantileLocked(q float64) time.Duration {
	if t.digest.Count() == 0 {
		return 0
	}
	return time.Duration(t.digest.Quantile(q))
}

// Snapshot returns a copy of the current aggregates.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		Started:             t.started,
		Cycles:              t.cycles,
		Failures:            t.failures,
		ConsecutiveFailures: t.consecutiveFailures,
		MaxConsecutive:      t.maxConsecutive,
		KillFailures:        t.killFailures,
		Overruns:            t.overruns,
		ArchiveErrors:       t.archiveErrors,
		ReportErrors:        t.reportErrors,
		ByReason:            make(map[outcome.Reason]uint64, len(t.byReason)),
		ExitCodes:           make(map[int]uint64, len(t.exitCodes)),
		DurationMin:         t.minDuration,
		DurationMax:         t.maxDuration,
		DurationP50:         t.quantileLocked(0.50),
		DurationP95:         t.quantileLocked(0.95),
		DurationP99:         t.quantileLocked(0.99),
		Last:                t.last,
		HasLast:             t.hasLast,
	}
	for r, n := range t.byReason {
		s.ByReason[r] = n
	}
	for c, n := range t.exitCodes {
		s.ExitCodes[c] = n
	}
	return s
}
