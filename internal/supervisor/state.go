// Package supervisor runs one probe per call and bounds it with a timeout.
package supervisor

import "fmt"

// Strategy selects how the timeout is enforced.
type Strategy int

const (
	// StrategyWatchdog arms a timer per run and kills the probe when it
	// fires. The primary path blocks on the reap, so exits are seen at once.
	StrategyWatchdog Strategy = iota

	// StrategyPoll checks the probe from a single loop with exponentially
	// growing sleeps. No extra goroutine, at the cost of detection latency.
	StrategyPoll
)

// String returns the name used in flags and metric labels.
func (s Strategy) String() string {
	switch s {
	case StrategyWatchdog:
		return "watchdog"
	case StrategyPoll:
		return "poll"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a flag value to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "watchdog", "":
		return StrategyWatchdog, nil
	case "poll":
		return StrategyPoll, nil
	}
	return 0, fmt.Errorf("unknown strategy %q (want watchdog or poll)", s)
}
