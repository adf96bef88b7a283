package external

import (
	"simengine/pkg/simtypes"

	"golang.org/x/time/rate"
)

// Pacer wraps a rate.Limiter sized to the throughput mode's target TPS, so
// the external queue drain never exceeds the configured rate even if the
// tick budget computation briefly overshoots under a burst of mode changes.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer creates a pacer for mode with a burst equal to its tick cap.
func NewPacer(mode simtypes.ThroughputMode) *Pacer {
	return &Pacer{limiter: rate.NewLimiter(rate.Limit(mode.TargetTPS()), mode.TickCap())}
}

// SetMode reconfigures the pacer's rate and burst for a new throughput
// mode, as issued by setThroughputMode.
func (p *Pacer) SetMode(mode simtypes.ThroughputMode) {
	p.limiter.SetLimit(rate.Limit(mode.TargetTPS()))
	p.limiter.SetBurst(mode.TickCap())
}

// Allow reports whether one more order may be synthesized this instant
// without blocking, consuming a token if so.
func (p *Pacer) Allow() bool {
	return p.limiter.Allow()
}
