package supervisor

import (
	"math"
	"math/rand"
	"time"
)

// BackoffConfig holds the configuration for exponential backoff.
type BackoffConfig struct {
	Initial    time.Duration // first delay (default: 500us)
	Max        time.Duration // delay cap (default: 500ms)
	Multiplier float64       // growth per attempt (default: 2)
	JitterPct  float64       // jitter as a fraction of the delay, 0 disables
}

// DefaultPollBackoff returns the liveness polling schedule used by the
// Poller: 500us doubling up to 500ms, without jitter.
func DefaultPollBackoff() BackoffConfig {
	return BackoffConfig{
		Initial:    500 * time.Microsecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2,
	}
}

// Backoff calculates exponential backoff delays.
type Backoff struct {
	config   BackoffConfig
	attempts int
	rng      *rand.Rand
}

// NewBackoff creates a backoff calculator. seed only matters when
// JitterPct is set.
func NewBackoff(seed int64, cfg BackoffConfig) *Backoff {
	if cfg.Multiplier < 1 {
		cfg.Multiplier = 1
	}
	return &Backoff{
		config: cfg,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Next returns the next delay and increments the attempt counter.
func (b *Backoff) Next() time.Duration {
	delay := b.Calculate()
	b.attempts++
	return delay
}

// Calculate returns the current delay without incrementing attempts.
func (b *Backoff) Calculate() time.Duration {
	delay := float64(b.config.Initial) * math.Pow(b.config.Multiplier, float64(b.attempts))
	if delay > float64(b.config.Max) {
		delay = float64(b.config.Max)
	}

	// ±(JitterPct/2) of the delay
	if b.config.JitterPct > 0 {
		jitterRange := delay * b.config.JitterPct
		delay += jitterRange*b.rng.Float64() - jitterRange/2
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

// Reset resets the attempt counter to zero.
func (b *Backoff) Reset() {
	b.attempts = 0
}

// Attempts returns the current attempt count.
func (b *Backoff) Attempts() int {
	return b.attempts
}

// capDelay returns d limited by every positive bound in limits and never
// below zero.
func capDelay(d time.Duration, limits ...time.Duration) time.Duration {
	for _, l := range limits {
		if l < d {
			d = l
		}
	}
	if d < 0 {
		d = 0
	}
	return d
}
