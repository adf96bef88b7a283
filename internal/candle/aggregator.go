// Package candle builds a validated OHLCV bar sequence from an ordered
// stream of (clock, price, volume) samples, one aggregator per session.
//
// The aggregation rules and the registry's creation-coalescing are grounded
// on the teacher's RWMutex-guarded market.Book (a single mutable instance
// mutated only through narrow, named methods) generalized to a per-session
// registry, and on the bar-rollover/validation/auto-repair logic of the
// reference OHLCV candle generator pattern (other_examples), adapted from
// multi-timeframe Redis publishing down to this engine's single-interval,
// in-memory, per-session bar sequence.
package candle

import (
	"log/slog"
	"math"
	"sync"

	"simengine/pkg/simtypes"
)

// Interval returns the bar interval for an initial price, per the documented
// price-tier policy, capped at 15s.
func Interval(initialPrice float64) int64 {
	switch {
	case initialPrice < 0.01:
		return 6000
	case initialPrice < 1:
		return 8000
	case initialPrice < 10:
		return 10000
	case initialPrice < 100:
		return 12000
	default:
		return 15000
	}
}

// Counters tracks the aggregator's lifetime validation statistics.
type Counters struct {
	TotalUpdates    int64
	TimestampFixes  int64
	OHLCFixes       int64
	InvalidDropped  int64
}

// SuccessRate returns the fraction of updates that produced a valid bar.
func (c Counters) SuccessRate() float64 {
	if c.TotalUpdates == 0 {
		return 1
	}
	return 1 - float64(c.InvalidDropped)/float64(c.TotalUpdates)
}

// Aggregator converts samples into OHLCV bars for one session at a fixed
// interval. All exported methods are safe for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	intervalMS int64
	historyCap int

	history []simtypes.Candle
	current *simtypes.Candle

	lastTimestamp int64 // last input clock seen by the timestamp coordinator
	lastBarClock  int64 // clock of the last finalized bar
	driftAccum    int64 // diagnostic accumulation of coordinator corrections

	resetInFlight chan struct{} // non-nil while a reset is running; closed on completion

	counters Counters
	logger   *slog.Logger
}

// New creates an aggregator with the interval derived from initialPrice.
func New(initialPrice float64, historyCap int, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		intervalMS: Interval(initialPrice),
		historyCap: historyCap,
		history:    make([]simtypes.Candle, 0, historyCap),
		logger:     logger.With("component", "candle"),
	}
}

// Ingest applies one (clock, price, volume) sample, performing timestamp
// coordination, bar rollover, and validation with auto-repair.
func (a *Aggregator) Ingest(clock int64, price, volume float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.counters.TotalUpdates++

	coordinated := a.coordinateTimestamp(clock)
	aligned := a.alignToBar(coordinated)

	if a.current == nil || aligned != a.current.OpenTime {
		a.rollover(aligned, price, volume)
	} else {
		a.current.Close = price
		if price > a.current.High {
			a.current.High = price
		}
		if price < a.current.Low {
			a.current.Low = price
		}
		a.current.Volume += volume
	}

	a.repairAndValidateCurrent()
}

// coordinateTimestamp maps the input clock to a monotonically
// non-decreasing value, accumulating drift for diagnostics.
func (a *Aggregator) coordinateTimestamp(clock int64) int64 {
	floor := a.lastTimestamp + a.intervalMS
	if a.lastTimestamp > 0 && clock < floor {
		a.driftAccum += floor - clock
		clock = floor
	}
	a.lastTimestamp = clock
	return clock
}

// alignToBar floors clock to the interval boundary, advancing by one
// interval if that lands at or before the last finalized bar.
func (a *Aggregator) alignToBar(clock int64) int64 {
	aligned := (clock / a.intervalMS) * a.intervalMS
	if aligned <= a.lastBarClock && a.lastBarClock > 0 {
		a.counters.TimestampFixes++
		aligned = a.lastBarClock + a.intervalMS
	}
	return aligned
}

// rollover finalizes the in-progress candle (if any) and opens a new one.
func (a *Aggregator) rollover(openTime int64, price, volume float64) {
	if a.current != nil {
		a.finalizeLocked()
	}

	openPrice := price
	if a.current != nil {
		openPrice = a.current.Close
	} else if len(a.history) > 0 {
		openPrice = a.history[len(a.history)-1].Close
	}

	a.current = &simtypes.Candle{
		OpenTime: openTime,
		Open:     openPrice,
		High:     max2(openPrice, price),
		Low:      min2(openPrice, price),
		Close:    price,
		Volume:   volume,
	}
}

// finalizeLocked appends the in-progress candle to history (if valid) and
// clears it. Caller must hold mu.
func (a *Aggregator) finalizeLocked() {
	if a.current == nil {
		return
	}
	if a.current.Valid() {
		a.history = append(a.history, *a.current)
		if len(a.history) > a.historyCap {
			a.history = a.history[len(a.history)-a.historyCap:]
		}
		a.lastBarClock = a.current.OpenTime
	} else {
		a.counters.InvalidDropped++
		a.logger.Warn("dropping unrepairable candle", "open_time", a.current.OpenTime)
	}
	a.current = nil
}

// repairAndValidateCurrent auto-repairs the in-progress candle in place,
// dropping it if it remains invalid after repair.
func (a *Aggregator) repairAndValidateCurrent() {
	c := a.current
	if c == nil {
		return
	}

	repaired := false
	if !finite(c.Open) {
		c.Open = pickFinite(c.Close, c.High, c.Low)
		repaired = true
	}
	if !finite(c.High) {
		c.High = pickFinite(c.Close, c.Open, c.Low)
		repaired = true
	}
	if !finite(c.Low) {
		c.Low = pickFinite(c.Close, c.Open, c.High)
		repaired = true
	}
	if !finite(c.Close) {
		c.Close = pickFinite(c.Open, c.High, c.Low)
		repaired = true
	}

	hi := max4(c.Open, c.High, c.Low, c.Close)
	lo := min4(c.Open, c.High, c.Low, c.Close)
	if c.High != hi || c.Low != lo {
		c.High = hi
		c.Low = lo
		repaired = true
	}
	if c.Volume < 0 || math.IsNaN(c.Volume) {
		c.Volume = 0
		repaired = true
	}

	if repaired {
		a.counters.OHLCFixes++
	}

	if !c.Valid() {
		a.counters.InvalidDropped++
		a.current = nil
	}
}

// FinalizeCurrent finalizes the in-progress candle into history, if any,
// without clearing history or resetting the interval. Used by the pause
// protocol so a paused session never leaves a bar dangling mid-interval.
func (a *Aggregator) FinalizeCurrent() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeLocked()
}

// SetCandles replaces history with a batch, revalidating every bar:
// non-monotonic timestamps are advanced to last+interval, OHLC is repaired,
// and unrepairable bars are dropped.
func (a *Aggregator) SetCandles(batch []simtypes.Candle) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]simtypes.Candle, 0, len(batch))
	var lastClock int64
	havePrev := false
	for _, c := range batch {
		a.counters.TotalUpdates++

		if havePrev && c.OpenTime <= lastClock {
			c.OpenTime = lastClock + a.intervalMS
			a.counters.TimestampFixes++
		}

		repaired := c
		hi := max4(repaired.Open, repaired.High, repaired.Low, repaired.Close)
		lo := min4(repaired.Open, repaired.High, repaired.Low, repaired.Close)
		if repaired.High != hi || repaired.Low != lo {
			repaired.High = hi
			repaired.Low = lo
			a.counters.OHLCFixes++
		}

		if !repaired.Valid() {
			a.counters.InvalidDropped++
			continue
		}

		out = append(out, repaired)
		lastClock = repaired.OpenTime
		havePrev = true
	}

	if len(out) > a.historyCap {
		out = out[len(out)-a.historyCap:]
	}
	a.history = out
	if len(out) > 0 {
		a.lastBarClock = out[len(out)-1].OpenTime
	}
}

// History returns up to n most recent finalized candles, newest last.
func (a *Aggregator) History(n int) []simtypes.Candle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n <= 0 || n >= len(a.history) {
		out := make([]simtypes.Candle, len(a.history))
		copy(out, a.history)
		return out
	}
	out := make([]simtypes.Candle, n)
	copy(out, a.history[len(a.history)-n:])
	return out
}

// Current returns a copy of the in-progress candle, or false if none.
func (a *Aggregator) Current() (simtypes.Candle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == nil {
		return simtypes.Candle{}, false
	}
	return *a.current, true
}

// Counters returns a snapshot of the validation statistics.
func (a *Aggregator) Counters() Counters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

// Reset clears history and the in-progress candle. Concurrent callers
// coalesce onto the reset already in flight rather than running a second
// one: the caller blocks on the same completion handle.
func (a *Aggregator) Reset(initialPrice float64) {
	a.mu.Lock()
	if a.resetInFlight != nil {
		done := a.resetInFlight
		a.mu.Unlock()
		<-done
		return
	}
	done := make(chan struct{})
	a.resetInFlight = done
	a.mu.Unlock()

	a.mu.Lock()
	a.history = a.history[:0]
	a.current = nil
	a.lastTimestamp = 0
	a.lastBarClock = 0
	a.driftAccum = 0
	a.counters = Counters{}
	a.intervalMS = Interval(initialPrice)
	a.resetInFlight = nil
	a.mu.Unlock()

	close(done)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func pickFinite(candidates ...float64) float64 {
	for _, c := range candidates {
		if finite(c) && c > 0 {
			return c
		}
	}
	return 0
}

func max2(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min2(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max4(a, b, c, d float64) float64 {
	return max2(max2(a, b), max2(c, d))
}

func min4(a, b, c, d float64) float64 {
	return min2(min2(a, b), min2(c, d))
}
