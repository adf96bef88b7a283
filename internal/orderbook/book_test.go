package orderbook

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func testConfig() Config {
	return Config{DefaultSpreadPct: 0.002, MinOrderSize: 100, DepthLevels: 20}
}

func TestNewBuildsSymmetricDepth(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	snap := b.Snapshot()

	require.Len(t, snap.Bids, 20)
	require.Len(t, snap.Asks, 20)
	assert.Less(t, snap.Bids[0].Price, snap.Asks[0].Price, "best bid must be below best ask")

	for i := 1; i < len(snap.Bids); i++ {
		assert.Less(t, snap.Bids[i].Price, snap.Bids[i-1].Price, "bid prices must descend")
	}
	for i := 1; i < len(snap.Asks); i++ {
		assert.Greater(t, snap.Asks[i].Price, snap.Asks[i-1].Price, "ask prices must ascend")
	}
}

func TestUpdateRecentersOnLargeDrift(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	b.Update(55, 1000) // 10% drift, well above the 1% recenter threshold

	snap := b.Snapshot()
	assert.InDelta(t, 55, snap.Mid, 0.01)
	assert.Equal(t, int64(1000), snap.UpdatedAt)
}

func TestUpdateMaintainsMinimumSpread(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	for i := 0; i < 5; i++ {
		b.Update(50, int64(i*50))
	}
	snap := b.Snapshot()
	spread := snap.Asks[0].Price - snap.Bids[0].Price
	assert.GreaterOrEqual(t, spread, snap.Mid*testConfig().DefaultSpreadPct-1e-9)
}

func TestFillConsumesDepthAndBoundsImpact(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	order := simtypes.ExternalOrder{
		Action:   simtypes.Buy,
		Price:    60,
		Quantity: 50000,
		Clock:    100,
	}
	trade, ok := b.Fill(order, 50)
	require.True(t, ok)
	assert.Greater(t, trade.Quantity, 0.0)
	assert.LessOrEqual(t, trade.PriceImpact, maxPriceImpact+1e-9)
}

func TestFillReturnsNoTradeWhenNothingCrosses(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	order := simtypes.ExternalOrder{
		Action:   simtypes.Buy,
		Price:    0.01, // far below any ask
		Quantity: 10,
		Clock:    100,
	}
	_, ok := b.Fill(order, 50)
	assert.False(t, ok)
}

func TestRecordTradeKeepsOnlyLastTen(t *testing.T) {
	t.Parallel()

	b := New(testConfig(), 50, 100000)
	for i := 0; i < 15; i++ {
		b.RecordTrade(simtypes.Buy, 1000)
	}
	assert.Len(t, b.recentTrades, 10)
}
