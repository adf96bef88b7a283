package session

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/internal/config"
	"simengine/internal/simerr"
	"simengine/pkg/simtypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Engine: config.EngineConfig{
			TickPeriod:         10 * time.Millisecond,
			MetricsPeriod:      20 * time.Millisecond,
			BroadcastThrottle:  50 * time.Millisecond,
			BroadcastMaxAge:    200 * time.Millisecond,
			RecentTradesCap:    200,
			ClosedPositionsCap: 100,
			CandleHistoryCap:   250,
			DefaultSpreadPct:   0.002,
			DepthLevels:        5,
			MinOrderSize:       10,
			MaxOrderSize:       10000,
			LockTimeout:        50 * time.Millisecond,
		},
		Pools: config.PoolConfig{
			TradeCapacity:    200,
			PositionCapacity: 100,
		},
		TraderData: config.TraderDataConfig{
			SyntheticCount: 20,
		},
	}
}

// recordingBroadcaster records every event fired, for assertions on the
// lifecycle-transition broadcast surface. Guarded by a mutex since the tick
// loop broadcasts from its own goroutine while tests poll events.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) Broadcast(sessionID, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingBroadcaster) has(eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == eventType {
			return true
		}
	}
	return false
}

func newTestController(t *testing.T) (*Controller, *recordingBroadcaster) {
	t.Helper()
	b := &recordingBroadcaster{}
	c := NewController(testConfig(), testLogger(), nil, b)
	return c, b
}

func TestCreateSessionEnforcesSingleActiveSession(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	first, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	second, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	assert.Same(t, first, second, "a second CreateSession while one is active must return the existing session")
}

func TestCreateSessionAfterTerminalAllowsNew(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	first, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	_, err = c.StopSession(first.ID())
	require.NoError(t, err)

	second, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	assert.NotEqual(t, first.ID(), second.ID(), "a new session should be created once the prior one is terminal")
}

func TestStartSessionRequiresReady(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, simtypes.StateReady, s.State())

	_, err = c.StartSession(s.ID())
	require.NoError(t, err)
	assert.Equal(t, simtypes.StateRunning, s.State())

	_, err = c.StartSession(s.ID())
	assert.ErrorIs(t, err, simerr.ErrInvalidState)
}

func TestGetSessionUnknownID(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	_, err := c.GetSession("does-not-exist")
	assert.True(t, errors.Is(err, simerr.ErrNotFound))
}

func TestPauseResumeCycle(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	_, err = c.PauseSession(s.ID())
	require.NoError(t, err)
	assert.True(t, s.Snapshot().Paused)

	_, err = c.ResumeSession(s.ID())
	require.NoError(t, err)
	assert.False(t, s.Snapshot().Paused)
}

func TestPauseWhileInFlightFailsFast(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	require.True(t, s.opLock.TryLock(), "expected to grab opLock to simulate an in-flight operation")

	_, err = c.PauseSession(s.ID())
	assert.ErrorIs(t, err, simerr.ErrConcurrencyViolation)

	s.opLock.Unlock()
}

func TestPauseRequiresRunning(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	_, err = c.PauseSession(s.ID())
	assert.ErrorIs(t, err, simerr.ErrInvalidState)
}

func TestResumeRequiresPaused(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	_, err = c.ResumeSession(s.ID())
	assert.ErrorIs(t, err, simerr.ErrInvalidState)
}

func TestStopThenDeleteReleasesActiveSlot(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	_, err = c.StopSession(s.ID())
	require.NoError(t, err)
	assert.Equal(t, simtypes.StateStopped, s.State())

	require.NoError(t, c.DeleteSession(s.ID()))
	assert.Equal(t, simtypes.StateDeleted, s.State())

	c.mu.Lock()
	_, stillPresent := c.sessions[s.ID()]
	activeID := c.activeID
	c.mu.Unlock()
	assert.False(t, stillPresent)
	assert.Empty(t, activeID)
}

func TestResetSessionClearsAccumulatedState(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	s.mu.Lock()
	s.totalTrades = 42
	s.throughputMode = simtypes.ThroughputStress
	s.mu.Unlock()

	_, err = c.ResetSession(s.ID())
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, simtypes.StateReady, snap.State)
	assert.Equal(t, int64(0), snap.TotalTrades)
	assert.Equal(t, simtypes.ThroughputNormal, snap.ThroughputMode)
}

func TestSetThroughputModeRejectsUnknown(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	_, err = c.SetThroughputMode(s.ID(), simtypes.ThroughputMode("BOGUS"))
	assert.ErrorIs(t, err, simerr.ErrUnknownMode)
}

func TestTriggerLiquidationCascadeRequiresStressOrHFT(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	_, err = c.TriggerLiquidationCascade(s.ID())
	assert.ErrorIs(t, err, simerr.ErrWrongMode)

	_, err = c.SetThroughputMode(s.ID(), simtypes.ThroughputStress)
	require.NoError(t, err)

	result, err := c.TriggerLiquidationCascade(s.ID())
	require.NoError(t, err)
	assert.Equal(t, result.Generated, result.CascadeSize)
}

func TestSetSpeedRejectsOutOfRange(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	_, err = c.SetSpeed(s.ID(), 0)
	assert.ErrorIs(t, err, simerr.ErrInvalidState)

	_, err = c.SetSpeed(s.ID(), 500)
	assert.ErrorIs(t, err, simerr.ErrInvalidState)

	got, err := c.SetSpeed(s.ID(), 50)
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)
}

func TestCheckPoolHealthLogsUnhealthyPool(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := testConfig()
	cfg.Pools.TradeCapacity = 10
	c := NewController(cfg, logger, nil, nil)
	defer c.Shutdown()

	var held []*simtypes.Trade
	for i := 0; i < 9; i++ { // 90% utilization, past the 80% health threshold
		held = append(held, c.tradePool.Acquire())
	}

	c.checkPoolHealth()
	assert.Contains(t, buf.String(), "pool unhealthy")

	for _, tr := range held {
		c.tradePool.Release(tr)
	}
}
