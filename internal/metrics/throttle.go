package metrics

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"simengine/pkg/simtypes"
)

// Throttle suppresses redundant broadcast of an unchanged metrics snapshot,
// forcing one through anyway once a maximum staleness elapses.
type Throttle struct {
	minInterval time.Duration
	maxAge      time.Duration

	lastHash [32]byte
	lastSent time.Time
}

// NewThrottle creates a throttle with the given minimum broadcast interval
// and maximum staleness before a forced re-send.
func NewThrottle(minInterval, maxAge time.Duration) *Throttle {
	return &Throttle{minInterval: minInterval, maxAge: maxAge}
}

// ShouldSend reports whether snapshot should be broadcast now: either it
// differs from the last sent snapshot (and the minimum interval has
// elapsed), or the maximum staleness has been exceeded.
func (t *Throttle) ShouldSend(snapshot simtypes.ThroughputMetrics, now time.Time) bool {
	hash := hashSnapshot(snapshot)

	if t.lastSent.IsZero() {
		t.lastHash = hash
		t.lastSent = now
		return true
	}

	stale := now.Sub(t.lastSent) >= t.maxAge
	changed := hash != t.lastHash
	elapsedMinInterval := now.Sub(t.lastSent) >= t.minInterval

	if stale || (changed && elapsedMinInterval) {
		t.lastHash = hash
		t.lastSent = now
		return true
	}
	return false
}

func hashSnapshot(s simtypes.ThroughputMetrics) [32]byte {
	h := sha256.New()
	var num [8]byte
	binary.LittleEndian.PutUint64(num[:], floatBits(s.ActualTPS))
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], floatBits(s.ConfiguredTPS))
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], uint64(s.QueueDepth))
	h.Write(num[:])
	binary.LittleEndian.PutUint64(num[:], floatBits(s.LiquidationRisk))
	h.Write(num[:])
	h.Write([]byte(s.Sentiment))
	h.Write([]byte(s.DominantArchetype))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func floatBits(f float64) uint64 {
	return uint64(int64(f * 1e6))
}
