package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"simengine/pkg/simtypes"
)

func TestRiskMonitorNoScoreWithoutHistory(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(10)
	assert.Equal(t, 0.0, m.Score(simtypes.ThroughputNormal))

	m.Observe(100)
	assert.Equal(t, 0.0, m.Score(simtypes.ThroughputNormal), "a single sample has no drawdown to measure")
}

func TestRiskMonitorScalesWithDrawdown(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(10)
	m.Observe(100)
	m.Observe(90) // 10% drawdown

	assert.InDelta(t, 0.5, m.Score(simtypes.ThroughputNormal), 1e-9)
}

func TestRiskMonitorBumpsForStressedModes(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(10)
	m.Observe(100)
	m.Observe(90)

	normal := m.Score(simtypes.ThroughputNormal)
	stress := m.Score(simtypes.ThroughputStress)
	hft := m.Score(simtypes.ThroughputHFT)

	assert.Greater(t, stress, normal)
	assert.Greater(t, hft, normal)
	assert.Greater(t, stress, hft)
}

func TestRiskMonitorClampsAtOne(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(5)
	m.Observe(100)
	m.Observe(1) // near-total drawdown

	assert.Equal(t, 1.0, m.Score(simtypes.ThroughputStress))
}

func TestRiskMonitorBoundsWindow(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(3)
	for i := 0; i < 10; i++ {
		m.Observe(float64(100 + i))
	}
	assert.Len(t, m.anchors, 3)
}

func TestRiskMonitorDefaultsWindowSize(t *testing.T) {
	t.Parallel()
	m := newRiskMonitor(0)
	assert.Equal(t, 20, m.windowTicks)
}
