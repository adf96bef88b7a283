package trader

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/pkg/simtypes"
)

func TestSelectActivityMode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ModeNormal, SelectActivityMode(5))
	assert.Equal(t, ModeMedium, SelectActivityMode(15))
	assert.Equal(t, ModeFast, SelectActivityMode(16))
}

func TestSizeTradeClampsToBounds(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(1))
	tr := simtypes.Trader{LifetimeVolume: 1, RiskClass: simtypes.RiskAggressive}
	_, qty := SizeTrade(rng, tr, 50)
	assert.GreaterOrEqual(t, qty, float64(minQuantity))
	assert.LessOrEqual(t, qty, maxQuantity(50))
}

func TestApplyFillOpensMergesAndCloses(t *testing.T) {
	t.Parallel()

	pos := &simtypes.Position{}
	updated, closed := ApplyFill(pos, "trader-1", simtypes.Buy, 50, 1000, 0)
	require.Nil(t, closed)
	require.NotNil(t, updated)
	assert.Equal(t, 1000.0, updated.Quantity)
	assert.Equal(t, 50.0, updated.EntryPrice)

	updated, closed = ApplyFill(updated, "trader-1", simtypes.Buy, 60, 1000, 1000)
	require.Nil(t, closed)
	assert.Equal(t, 2000.0, updated.Quantity)
	assert.Equal(t, 55.0, updated.EntryPrice, "merge must volume-weight the entry price")

	updated, closed = ApplyFill(updated, "trader-1", simtypes.Sell, 70, 2000, 2000)
	require.NotNil(t, closed)
	assert.Nil(t, updated)
	assert.InDelta(t, 30000.0, closed.RealizedPnL, 0.01)
}

func TestApplyFillFlipsSignOnOvershoot(t *testing.T) {
	t.Parallel()

	pos := &simtypes.Position{Quantity: 1000, EntryPrice: 50, EntryClock: 0}
	updated, closed := ApplyFill(pos, "trader-1", simtypes.Sell, 60, 1500, 100)
	require.Nil(t, closed)
	require.NotNil(t, updated)
	assert.Equal(t, -500.0, updated.Quantity)
	assert.Equal(t, 60.0, updated.EntryPrice, "sign flip must reset entry price to the flipping trade")
}

func TestUpdatePnLComputesFraction(t *testing.T) {
	t.Parallel()

	pos := &simtypes.Position{Quantity: 1000, EntryPrice: 50}
	UpdatePnL(pos, 55)
	assert.Equal(t, 5000.0, pos.PnL)
	assert.InDelta(t, 0.1, pos.PnLFraction, 1e-9)
}

func TestRankOrdersByNetPnLDescending(t *testing.T) {
	t.Parallel()

	traders := []simtypes.Trader{
		{WalletID: "a", NetPnL: 10},
		{WalletID: "b", NetPnL: 100},
		{WalletID: "c", NetPnL: 50},
	}
	ranked := Rank(traders, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, "b", ranked[0].WalletID)
	assert.Equal(t, "c", ranked[1].WalletID)
	assert.Equal(t, 1, ranked[0].Rank)
}

func TestDedupCacheRejectsRepeats(t *testing.T) {
	t.Parallel()

	d := NewDedupCache()
	assert.False(t, d.SeenOrRecord("trade-1"))
	assert.True(t, d.SeenOrRecord("trade-1"))
}

func TestDedupCachePrunesAboveThreshold(t *testing.T) {
	t.Parallel()

	d := NewDedupCache()
	for i := 0; i < dedupPruneThreshold; i++ {
		d.SeenOrRecord(string(rune(i)))
	}
	assert.Equal(t, dedupPruneThreshold, d.Len())

	// one more distinct id pushes past the threshold and triggers a clear
	d.SeenOrRecord("overflow")
	assert.Equal(t, 1, d.Len())
}
