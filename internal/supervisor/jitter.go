package supervisor

import (
	"hash/fnv"
	"math/rand"
	"time"
)

// JitterSource provides deterministic per-monitor start offsets. A fleet of
// runners configured with the same interval would otherwise fire in
// lockstep; keying the offset on the monitor name keeps each one stable
// across restarts.
type JitterSource struct {
	configSeed int64
}

// NewJitterSource creates a jitter source with the given seed.
func NewJitterSource(configSeed int64) *JitterSource {
	return &JitterSource{configSeed: configSeed}
}

// ForKey returns a random number generator seeded for key.
func (j *JitterSource) ForKey(key string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(key))
	return rand.New(rand.NewSource(int64(h.Sum64()) ^ j.configSeed))
}

// Offset returns a duration in [0, maxJitter) for key.
func (j *JitterSource) Offset(key string, maxJitter time.Duration) time.Duration {
	if maxJitter <= 0 {
		return 0
	}
	return time.Duration(j.ForKey(key).Int63n(int64(maxJitter)))
}
