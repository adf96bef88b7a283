package trader

import (
	"math/rand"

	"simengine/pkg/simtypes"

	"simengine/internal/pool"
)

// TradePool and PositionPool are the narrow pool surfaces the tick routine
// needs, satisfied by *pool.Pool[*simtypes.Trade] and
// *pool.Pool[*simtypes.Position].
type TradePool interface {
	Acquire() *simtypes.Trade
	Release(*simtypes.Trade)
}

type PositionPool interface {
	Acquire() *simtypes.Position
	Release(*simtypes.Position)
}

// Book is the narrow order-book surface the tick routine drives.
type Book interface {
	RecordTrade(side simtypes.Side, notional float64)
}

// TickInput bundles everything the trader engine needs for one tick.
type TickInput struct {
	Traders     []simtypes.Trader
	Positions   map[string]*simtypes.Position
	Mode        ActivityMode
	Trend       simtypes.Trend
	RealizedVol float64
	Price       float64
	Clock       int64
	Rng         *rand.Rand
	TradePool   TradePool
	PositionPool PositionPool
	Dedup       *DedupCache
	Book        Book
}

// TickResult is the output of one trader-engine tick.
type TickResult struct {
	Trades          []*simtypes.Trade
	ClosedPositions []simtypes.ClosedPosition
	Released        int // positions released back to the pool this tick
}

// Tick shuffles participants, applies the decision rule and sizing to each
// active one, merges fills into positions, and tops up the tick with
// supplementary market-maker/retail and random-fill trades until the
// activity mode's target trade count is met.
func Tick(in TickInput) TickResult {
	result := TickResult{}

	order := in.Rng.Perm(len(in.Traders))
	activeCount := int(float64(len(in.Traders)) * in.Mode.ParticipationRate)

	for i := 0; i < activeCount && i < len(order); i++ {
		t := in.Traders[order[i]]
		tradesThisAgent := 1
		if in.Mode.MaxTradesPerAgent > 1 {
			tradesThisAgent = 1 + in.Rng.Intn(in.Mode.MaxTradesPerAgent)
		}

		for k := 0; k < tradesThisAgent; k++ {
			emitAgentTrade(in, t, &result)
		}
	}

	target := in.Mode.TargetTrades
	mmRetailBudget := int(float64(target) * 0.4)
	for i := 0; i < mmRetailBudget && len(in.Traders) > 0; i++ {
		t := in.Traders[in.Rng.Intn(len(in.Traders))]
		if t.Strategy == simtypes.StrategyScalper || t.Strategy == simtypes.StrategySwing {
			emitAgentTrade(in, t, &result)
		}
	}

	for len(result.Trades) < target && len(in.Traders) > 0 {
		t := in.Traders[in.Rng.Intn(len(in.Traders))]
		emitAgentTrade(in, t, &result)
	}

	return result
}

func emitAgentTrade(in TickInput, t simtypes.Trader, result *TickResult) {
	pos := in.Positions[t.WalletID]
	side, ok := Decide(in.Rng, t, pos, in.Trend, in.RealizedVol)
	if !ok {
		return
	}

	notional, quantity := SizeTrade(in.Rng, t, in.Price)

	trade := in.TradePool.Acquire()
	trade.TraderID = t.WalletID
	trade.Action = side
	trade.Price = in.Price
	trade.Quantity = quantity
	trade.Notional = notional
	trade.Clock = in.Clock

	fresh := pos == nil
	if fresh {
		pos = in.PositionPool.Acquire()
	}

	updated, closed := ApplyFill(pos, t.WalletID, side, in.Price, quantity, in.Clock)
	if closed != nil {
		in.PositionPool.Release(pos)
		result.Released++
		delete(in.Positions, t.WalletID)
		result.ClosedPositions = append(result.ClosedPositions, *closed)
	} else {
		in.Positions[t.WalletID] = updated
	}

	if in.Book != nil {
		in.Book.RecordTrade(side, notional)
	}

	result.Trades = append(result.Trades, trade)
}
