package session

import "simengine/pkg/simtypes"

// riskMonitor estimates the ThroughputMetrics.LiquidationRisk gauge from a
// rolling window of recent prices: the larger a drop within the window, the
// higher the risk score, scaled up under stressed throughput modes.
//
// Grounded on the teacher's internal/risk/manager.go priceAnchor rolling-
// window rapid-movement detector (KillSwitchWindowSec/KillSwitchDropPct),
// generalized from a binary kill-switch trigger into a continuous [0,1]
// risk score with no kill-switch side effect — this engine has no orders
// to cancel, only a metrics gauge to report.
type riskMonitor struct {
	windowTicks int
	anchors     []float64 // price samples, oldest first, bounded at windowTicks
}

func newRiskMonitor(windowTicks int) *riskMonitor {
	if windowTicks <= 0 {
		windowTicks = 20
	}
	return &riskMonitor{windowTicks: windowTicks}
}

// Observe records the latest price sample.
func (m *riskMonitor) Observe(price float64) {
	m.anchors = append(m.anchors, price)
	if len(m.anchors) > m.windowTicks {
		m.anchors = m.anchors[len(m.anchors)-m.windowTicks:]
	}
}

// Score returns a [0,1] liquidation-risk estimate: the peak drawdown over
// the observed window, scaled by 5, bumped for stressed throughput modes
// where cascades are more likely to be in flight, then clamped to 1.
func (m *riskMonitor) Score(mode simtypes.ThroughputMode) float64 {
	if len(m.anchors) < 2 {
		return 0
	}

	peak := m.anchors[0]
	var maxDrawdown float64
	for _, p := range m.anchors {
		if p > peak {
			peak = p
		}
		if peak > 0 {
			drawdown := (peak - p) / peak
			if drawdown > maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	score := maxDrawdown * 5
	switch mode {
	case simtypes.ThroughputStress:
		score += 0.15
	case simtypes.ThroughputHFT:
		score += 0.05
	}

	if score > 1 {
		score = 1
	}
	return score
}
