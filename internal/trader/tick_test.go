package trader

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"simengine/internal/pool"
	"simengine/pkg/simtypes"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func samplePopulation(n int) []simtypes.Trader {
	out := make([]simtypes.Trader, n)
	strategies := []simtypes.Strategy{simtypes.StrategyMomentum, simtypes.StrategyContrarian, simtypes.StrategyScalper, simtypes.StrategySwing}
	for i := range out {
		out[i] = simtypes.Trader{
			WalletID:       string(rune('a' + i)),
			LifetimeVolume: 100000,
			RiskClass:      simtypes.RiskModerate,
			Strategy:       strategies[i%len(strategies)],
			WinRate:        0.55,
		}
	}
	return out
}

func TestTickProducesAtLeastTargetTrades(t *testing.T) {
	t.Parallel()

	tradePool := pool.New[*simtypes.Trade]("trade", 200, func() *simtypes.Trade { return &simtypes.Trade{} }, testLogger())
	posPool := pool.New[*simtypes.Position]("position", 100, func() *simtypes.Position { return &simtypes.Position{} }, testLogger())

	in := TickInput{
		Traders:      samplePopulation(20),
		Positions:    make(map[string]*simtypes.Position),
		Mode:         ModeNormal,
		Trend:        simtypes.TrendBullish,
		RealizedVol:  0.01,
		Price:        50,
		Clock:        1000,
		Rng:          rand.New(rand.NewSource(7)),
		TradePool:    tradePool,
		PositionPool: posPool,
		Dedup:        NewDedupCache(),
	}

	result := Tick(in)
	assert.GreaterOrEqual(t, len(result.Trades), ModeNormal.TargetTrades)
}

func TestTickMergesRepeatTradesIntoSamePosition(t *testing.T) {
	t.Parallel()

	tradePool := pool.New[*simtypes.Trade]("trade", 50, func() *simtypes.Trade { return &simtypes.Trade{} }, testLogger())
	posPool := pool.New[*simtypes.Position]("position", 50, func() *simtypes.Position { return &simtypes.Position{} }, testLogger())

	positions := make(map[string]*simtypes.Position)
	in := TickInput{
		Traders:      samplePopulation(3),
		Positions:    positions,
		Mode:         ModeFast,
		Trend:        simtypes.TrendBullish,
		RealizedVol:  0.01,
		Price:        50,
		Clock:        1000,
		Rng:          rand.New(rand.NewSource(3)),
		TradePool:    tradePool,
		PositionPool: posPool,
		Dedup:        NewDedupCache(),
	}

	Tick(in)
	require.NotEmpty(t, positions)
	for _, pos := range positions {
		assert.NotEqual(t, 0.0, pos.Quantity)
	}
}
