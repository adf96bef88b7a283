// Package trader drives per-tick agent decisions: side selection by
// strategy archetype, trade sizing, position merge/flip/close, P&L
// accounting, and ranking.
//
// Position merge follows the volume-weighted average entry price idiom in
// the teacher's internal/strategy/inventory.go Inventory.OnFill (accumulate
// cost, divide by new quantity; on a reducing fill, realize P&L against the
// existing entry price) generalized from two fixed YES/NO tokens to one
// position per trader against a single instrument, with explicit sign-flip
// handling in place of the teacher's two-sided token bookkeeping.
package trader

import (
	"math"
	"math/rand"

	"simengine/pkg/simtypes"
)

// ActivityMode keys the per-tick participation rate to the session's time
// compression factor.
type ActivityMode struct {
	Name              string
	TargetTrades      int
	ParticipationRate float64
	TurnoverRate      float64
	MaxTradesPerAgent int
}

var (
	ModeNormal = ActivityMode{Name: "MAXIMUM_NORMAL", TargetTrades: 100, ParticipationRate: 0.8, TurnoverRate: 0.4, MaxTradesPerAgent: 1}
	ModeMedium = ActivityMode{Name: "MAXIMUM_MEDIUM", TargetTrades: 200, ParticipationRate: 0.9, TurnoverRate: 0.6, MaxTradesPerAgent: 1}
	ModeFast   = ActivityMode{Name: "MAXIMUM_FAST", TargetTrades: 400, ParticipationRate: 1.0, TurnoverRate: 0.8, MaxTradesPerAgent: 3}
)

// SelectActivityMode keys the mode to the compression factor.
func SelectActivityMode(compressionFactor float64) ActivityMode {
	switch {
	case compressionFactor <= 5:
		return ModeNormal
	case compressionFactor <= 15:
		return ModeMedium
	default:
		return ModeFast
	}
}

const closeThreshold = 10.0

// maxQuantity is the upper bound of the trade-size clamp (minQuantity is
// the lower bound); it falls with price tier.
func maxQuantity(price float64) float64 {
	switch {
	case price >= 100:
		return 20000
	case price >= 10:
		return 50000
	default:
		return 100000
	}
}

const minQuantity = 500

// Decide chooses a side for an agent given its strategy, current position
// sign, the market trend, and realized volatility. Every branch picks a
// side, so the second result is always true.
func Decide(rng *rand.Rand, t simtypes.Trader, position *simtypes.Position, trend simtypes.Trend, realizedVol float64) (simtypes.Side, bool) {
	if position != nil && position.Quantity != 0 {
		if rng.Float64() < 0.4 {
			if position.Quantity > 0 {
				return simtypes.Sell, true
			}
			return simtypes.Buy, true
		}
	}

	switch t.Strategy {
	case simtypes.StrategyMomentum:
		if t.WinRate > 0.5 {
			return sideFromTrend(trend, rng), true
		}
		return biasedSide(rng, 0.7), true

	case simtypes.StrategyContrarian:
		if realizedVol > 0.02 {
			return sideFromTrend(opposite(trend), rng), true
		}
		return biasedSide(rng, 0.6), true

	case simtypes.StrategyScalper:
		if realizedVol > 0.005 {
			return biasedSide(rng, 0.5), true
		}
		return simtypes.Buy, true

	default: // swing and unrecognized strategies
		bias := 0.5
		switch t.RiskClass {
		case simtypes.RiskAggressive:
			bias = 0.6
		case simtypes.RiskConservative:
			bias = 0.4
		}
		return biasedSide(rng, bias), true
	}
}

func sideFromTrend(trend simtypes.Trend, rng *rand.Rand) simtypes.Side {
	switch trend {
	case simtypes.TrendBullish:
		return simtypes.Buy
	case simtypes.TrendBearish:
		return simtypes.Sell
	default:
		return biasedSide(rng, 0.5)
	}
}

func opposite(trend simtypes.Trend) simtypes.Trend {
	switch trend {
	case simtypes.TrendBullish:
		return simtypes.TrendBearish
	case simtypes.TrendBearish:
		return simtypes.TrendBullish
	default:
		return simtypes.TrendSideways
	}
}

func biasedSide(rng *rand.Rand, buyProbability float64) simtypes.Side {
	if rng.Float64() < buyProbability {
		return simtypes.Buy
	}
	return simtypes.Sell
}

// basePctByRisk returns the notional sizing percentage of lifetime volume.
func basePctByRisk(risk simtypes.RiskClass) float64 {
	switch risk {
	case simtypes.RiskAggressive:
		return 0.30
	case simtypes.RiskModerate:
		return 0.20
	default:
		return 0.10
	}
}

// SizeTrade computes notional and quantity for a trader's trade at the
// given price, clamped to the price tier's quantity bounds.
func SizeTrade(rng *rand.Rand, t simtypes.Trader, price float64) (notional, quantity float64) {
	basePct := basePctByRisk(t.RiskClass)
	multiplier := 0.5 + rng.Float64()*1.0 // U[0.5, 1.5]
	notional = t.LifetimeVolume * basePct * multiplier

	if price <= 0 {
		price = 1
	}
	quantity = notional / price

	lo, hi := minQuantity, maxQuantity(price)
	if quantity < lo {
		quantity = lo
	}
	if quantity > hi {
		quantity = hi
	}
	notional = quantity * price
	return notional, quantity
}

// ApplyFill merges a new fill into pos, which must be non-nil (freshly
// acquired and zeroed from the position pool for a trader with no existing
// exposure, or the trader's current position otherwise). It returns the
// updated position, or nil plus a ClosedPosition record if the fill closed
// the position out.
func ApplyFill(pos *simtypes.Position, traderID string, side simtypes.Side, price, quantity float64, clock int64) (*simtypes.Position, *simtypes.ClosedPosition) {
	signedQty := quantity
	if side == simtypes.Sell {
		signedQty = -quantity
	}

	if pos.Quantity == 0 {
		pos.TraderID = traderID
		pos.EntryPrice = price
		pos.Quantity = signedQty
		pos.EntryClock = clock
		return pos, nil
	}

	sameSign := (pos.Quantity > 0) == (signedQty > 0)

	if sameSign {
		totalCost := pos.EntryPrice*math.Abs(pos.Quantity) + price*quantity
		newQty := pos.Quantity + signedQty
		pos.EntryPrice = totalCost / math.Abs(newQty)
		pos.Quantity = newQty
		return pos, nil
	}

	newQty := pos.Quantity + signedQty
	if math.Abs(newQty) < closeThreshold {
		closed := &simtypes.ClosedPosition{
			TraderID:    traderID,
			EntryPrice:  pos.EntryPrice,
			ExitPrice:   price,
			Quantity:    pos.Quantity,
			EntryClock:  pos.EntryClock,
			ExitClock:   clock,
			RealizedPnL: sign(pos.Quantity) * math.Abs(pos.Quantity) * (price - pos.EntryPrice),
		}
		return nil, closed
	}

	if (newQty > 0) != (pos.Quantity > 0) {
		// sign flipped: reset entry price and clock to the flipping trade
		pos.EntryPrice = price
		pos.EntryClock = clock
	}
	pos.Quantity = newQty
	return pos, nil
}

// UpdatePnL recomputes unrealized P&L and its fraction against a mark price.
func UpdatePnL(pos *simtypes.Position, mark float64) {
	if pos == nil || pos.Quantity == 0 {
		return
	}
	qtyAbs := math.Abs(pos.Quantity)
	pos.PnL = sign(pos.Quantity) * qtyAbs * (mark - pos.EntryPrice)
	if pos.EntryPrice != 0 {
		pos.PnLFraction = pos.PnL / (qtyAbs * pos.EntryPrice)
	}
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// Rank sorts traders by net P&L descending and assigns ranks, returning the
// top n.
func Rank(traders []simtypes.Trader, n int) []simtypes.RankedTrader {
	sorted := append([]simtypes.Trader(nil), traders...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].NetPnL > sorted[j-1].NetPnL; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	if n > 0 && n < len(sorted) {
		sorted = sorted[:n]
	}
	out := make([]simtypes.RankedTrader, len(sorted))
	for i, t := range sorted {
		out[i] = simtypes.RankedTrader{WalletID: t.WalletID, NetPnL: t.NetPnL, Rank: i + 1}
	}
	return out
}
