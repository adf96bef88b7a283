// Package orderbook maintains a synthetic two-sided depth of book for one
// simulated instrument: construction around a mid, per-tick recentering and
// pressure response, and deterministic external-order fill simulation.
//
// The RWMutex-guarded single-instance shape is grounded on the teacher's
// market.Book, which mirrors one CLOB order book behind narrow accessor
// methods (MidPrice, BestBidAsk). Here the book is not a mirror of an
// external feed but is itself generated and advanced every tick.
package orderbook

import (
	"math"
	"sync"

	"simengine/pkg/simtypes"
)

const (
	depthLevels = 20
	decayRate   = 0.1
	refillStep  = 0.001 // 0.1% per additional refilled level
)

// Config holds the tunables the book needs from the engine configuration.
type Config struct {
	DefaultSpreadPct float64
	MinOrderSize     float64
	DepthLevels      int
}

// Book is the live, mutable depth of book for one instrument.
type Book struct {
	mu sync.RWMutex

	cfg Config

	bids []simtypes.PriceLevel // price descending
	asks []simtypes.PriceLevel // price ascending

	mid          float64 // price last used to build/recenter the book
	recentTrades []tradeSample
	lastClock    int64
}

type tradeSample struct {
	side     simtypes.Side
	notional float64
}

// New constructs a book with depthLevels levels per side, centered on mid
// with an exponential decay quantity profile seeded by liquidity.
func New(cfg Config, mid, liquidity float64) *Book {
	if cfg.DepthLevels <= 0 {
		cfg.DepthLevels = depthLevels
	}
	b := &Book{cfg: cfg, mid: mid}
	b.bids, b.asks = buildLevels(cfg, mid, liquidity)
	return b
}

func buildLevels(cfg Config, mid, liquidity float64) (bids, asks []simtypes.PriceLevel) {
	n := cfg.DepthLevels
	halfSpread := cfg.DefaultSpreadPct / 2
	step := cfg.DefaultSpreadPct / float64(n)

	bids = make([]simtypes.PriceLevel, n)
	asks = make([]simtypes.PriceLevel, n)
	for i := 0; i < n; i++ {
		offset := step * float64(i+1)
		qty := math.Max(cfg.MinOrderSize, (liquidity*0.1/float64(n))*math.Exp(-float64(i)*decayRate))

		bids[i] = simtypes.PriceLevel{Price: mid * (1 - halfSpread - offset), Quantity: qty}
		asks[i] = simtypes.PriceLevel{Price: mid * (1 + halfSpread + offset), Quantity: qty}
	}
	return bids, asks
}

// Snapshot returns a read-only copy of the current book state.
func (b *Book) Snapshot() simtypes.OrderBook {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := simtypes.OrderBook{
		Bids:      append([]simtypes.PriceLevel(nil), b.bids...),
		Asks:      append([]simtypes.PriceLevel(nil), b.asks...),
		Mid:       b.mid,
		UpdatedAt: b.lastClock,
	}
	return out
}

// RecordTrade feeds a fill into the short-window pressure tracker used by
// Update. Only the last 10 trades are retained.
func (b *Book) RecordTrade(side simtypes.Side, notional float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recentTrades = append(b.recentTrades, tradeSample{side: side, notional: notional})
	if len(b.recentTrades) > 10 {
		b.recentTrades = b.recentTrades[len(b.recentTrades)-10:]
	}
}

// Update runs the per-tick book maintenance routine: recenter on drift,
// otherwise apply buy/sell pressure scaling; drop and refill thin levels;
// remove crossed levels; enforce the minimum spread; stamp the clock.
func (b *Book) Update(currentPrice float64, clock int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.mid == 0 {
		b.mid = currentPrice
	}

	drift := math.Abs(currentPrice-b.mid) / b.mid
	if drift >= 0.01 {
		b.bids, b.asks = buildLevels(b.cfg, currentPrice, totalQuantity(b.bids)+totalQuantity(b.asks))
		b.mid = currentPrice
	} else {
		b.applyPressureLocked()
	}

	b.dropAndRefillLocked()
	b.removeCrossedLocked()
	b.enforceMinSpreadLocked()

	b.lastClock = clock
}

func totalQuantity(levels []simtypes.PriceLevel) float64 {
	var sum float64
	for _, l := range levels {
		sum += l.Quantity
	}
	return sum
}

// Imbalance returns the current buy/sell pressure over the recorded recent
// trades, in [-1, 1], positive favoring buys.
func (b *Book) Imbalance() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.imbalanceLocked()
}

// imbalanceLocked computes buy/sell pressure over the recorded recent
// trades, in [-1, 1], positive favoring buys.
func (b *Book) imbalanceLocked() float64 {
	var buy, sell float64
	for _, t := range b.recentTrades {
		if t.side == simtypes.Buy {
			buy += t.notional
		} else {
			sell += t.notional
		}
	}
	total := buy + sell
	if total == 0 {
		return 0
	}
	return (buy - sell) / total
}

func (b *Book) applyPressureLocked() {
	pressure := b.imbalanceLocked()
	if pressure == 0 {
		return
	}

	grow := 1 + math.Min(math.Abs(pressure)*0.1, 0.1)
	shrink := 1 - math.Min(math.Abs(pressure)*0.2, 0.2)

	if pressure > 0 {
		scaleLevels(b.bids, grow)
		scaleLevels(b.asks, shrink)
	} else {
		scaleLevels(b.asks, grow)
		scaleLevels(b.bids, shrink)
	}
}

func scaleLevels(levels []simtypes.PriceLevel, factor float64) {
	for i := range levels {
		levels[i].Quantity *= factor
	}
}

func (b *Book) dropAndRefillLocked() {
	b.bids = dropThin(b.bids, b.cfg.MinOrderSize)
	b.asks = dropThin(b.asks, b.cfg.MinOrderSize)

	b.bids = refill(b.bids, b.cfg.DepthLevels, b.mid, -1, b.cfg)
	b.asks = refill(b.asks, b.cfg.DepthLevels, b.mid, 1, b.cfg)
}

func dropThin(levels []simtypes.PriceLevel, minQty float64) []simtypes.PriceLevel {
	out := levels[:0]
	for _, l := range levels {
		if l.Quantity >= minQty {
			out = append(out, l)
		}
	}
	return out
}

// refill extends depth from the outside at prices stepping by refillStep
// per additional level until the side has n levels. dir is -1 for bids
// (extending below mid) and +1 for asks (extending above mid).
func refill(levels []simtypes.PriceLevel, n int, mid float64, dir int, cfg Config) []simtypes.PriceLevel {
	if len(levels) >= n {
		return levels
	}
	far := mid
	if len(levels) > 0 {
		far = levels[len(levels)-1].Price
	}
	for len(levels) < n {
		far = far * (1 + float64(dir)*refillStep)
		levels = append(levels, simtypes.PriceLevel{Price: far, Quantity: cfg.MinOrderSize})
	}
	return levels
}

func (b *Book) removeCrossedLocked() {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return
	}
	for len(b.bids) > 0 && len(b.asks) > 0 && b.bids[0].Price >= b.asks[0].Price {
		b.bids = b.bids[1:]
		if len(b.bids) == 0 {
			break
		}
	}
}

func (b *Book) enforceMinSpreadLocked() {
	if len(b.bids) == 0 || len(b.asks) == 0 {
		return
	}
	minSpread := b.mid * b.cfg.DefaultSpreadPct
	gap := b.asks[0].Price - b.bids[0].Price
	if gap >= minSpread {
		return
	}
	adjust := (minSpread - gap) / 2
	for i := range b.bids {
		b.bids[i].Price -= adjust
	}
	for i := range b.asks {
		b.asks[i].Price += adjust
	}
}
