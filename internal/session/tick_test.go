package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func TestTickLoopAdvancesClockAndProducesTrades(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{CompressionFactor: 50})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.Snapshot().Clock > 0
	}, time.Second, 5*time.Millisecond, "tick loop should advance the session clock")

	snap := s.Snapshot()
	assert.Greater(t, snap.TotalTrades, int64(0), "ticking with a non-trivial trader population should produce trades")

	_, err = c.StopSession(s.ID())
	require.NoError(t, err)
}

func TestTickLoopBroadcastsProcessedTrade(t *testing.T) {
	t.Parallel()
	c, b := newTestController(t)

	s, err := c.CreateSession(CreateParams{CompressionFactor: 50})
	require.NoError(t, err)
	_, err = c.StartSession(s.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return b.has(EventProcessedTrade)
	}, time.Second, 5*time.Millisecond, "every produced trade must be broadcast as processed_trade")

	_, err = c.StopSession(s.ID())
	require.NoError(t, err)
}

func TestDoTickNoopsWhenNotRunning(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	// Session is Ready, not Running: doTick must be a safe no-op.
	stop := s.doTick()
	assert.False(t, stop)
	assert.Equal(t, int64(0), s.Snapshot().Clock)
}

func TestDoTickStopsAtEndClock(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{CompressionFactor: 200, DurationMinutes: 1})
	require.NoError(t, err)

	s.mu.Lock()
	s.state = simtypes.StateRunning
	s.endClock = 1 // first tick's deltaMS will already exceed this
	s.cancelMetrics = make(chan struct{})
	s.mu.Unlock()

	stop := s.doTick()
	assert.True(t, stop, "a tick crossing endClock must report stop")

	snap := s.Snapshot()
	assert.True(t, snap.Paused)
}

func TestPushTradeReleasesEvictedToPool(t *testing.T) {
	t.Parallel()
	c, _ := newTestController(t)

	s, err := c.CreateSession(CreateParams{})
	require.NoError(t, err)

	before := s.tradePool.Health().InUse

	t1 := s.tradePool.Acquire()
	t1.ID = "a"
	s.pushTrade(t1, 1)
	afterFirst := s.tradePool.Health().InUse
	assert.Equal(t, before+1, afterFirst)

	t2 := s.tradePool.Acquire()
	t2.ID = "b"
	s.pushTrade(t2, 1)
	assert.Equal(t, afterFirst, s.tradePool.Health().InUse, "the evicted trade must be released back to the pool")

	require.Len(t, s.recentTrades, 1)
	assert.Equal(t, "b", s.recentTrades[0].ID, "newest trade should be at the front")
	assert.Equal(t, int64(2), s.totalTrades)
}

func TestRealizedVolShortHistory(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0.0, realizedVol(nil))
	assert.Equal(t, 0.0, realizedVol([]float64{100}))
	assert.Greater(t, realizedVol([]float64{100, 105, 98, 110}), 0.0)
}

func TestDominantArchetypePicksMax(t *testing.T) {
	t.Parallel()
	counts := map[simtypes.Archetype]int{
		simtypes.ArchetypeRetailTrader: 3,
		simtypes.ArchetypeWhale:        7,
		simtypes.ArchetypeMEVBot:       1,
	}
	assert.Equal(t, simtypes.ArchetypeWhale, dominantArchetype(counts))
}

func TestDominantArchetypeEmpty(t *testing.T) {
	t.Parallel()
	assert.Equal(t, simtypes.Archetype(""), dominantArchetype(map[simtypes.Archetype]int{}))
}
