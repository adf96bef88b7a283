// Package session is the lifecycle controller: the state machine, the
// single-active-session gate, and the tick loop that drives the price
// engine, trader engine, external order generator, order book, and candle
// aggregator every 50ms.
//
// The orchestrator shape — one struct owning subsystem instances, a
// goroutine-per-running-session stopped through a cancel channel, narrow
// locked accessor methods for snapshotting — is grounded on the teacher's
// internal/engine/engine.go, generalized from "one goroutine per traded
// market" to "one goroutine per running simulation session" under a
// single-active-session constraint the teacher's engine does not have.
package session

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"simengine/internal/candle"
	"simengine/internal/config"
	"simengine/internal/external"
	"simengine/internal/orderbook"
	"simengine/internal/pool"
	"simengine/internal/pricing"
	"simengine/internal/simerr"
	"simengine/internal/trader"
	"simengine/pkg/simtypes"
)

// CreateParams configures a new session. A zero CustomPrice means sample
// one from the weighted price-category distribution.
type CreateParams struct {
	CustomPrice       float64
	DurationMinutes   int
	CompressionFactor float64
	VolatilityMult    float64
	InitialLiquidity  float64
}

// Session is one simulated market. All mutation happens inside the tick
// loop, lifecycle operations, or under explicit lock.
type Session struct {
	id string

	mu     sync.Mutex // guards the fields below; the tick loop holds it for the duration of one tick
	opLock sync.Mutex // serializes pause/resume/reset/stop against each other

	state  simtypes.SessionState
	paused bool

	speed            float64 // compression factor, 1..200
	volatilityMult   float64
	initialPrice     float64
	initialLiquidity float64

	price      float64
	clock      int64
	startClock int64
	endClock   int64

	volatility float64
	trend      simtypes.Trend
	barHistory []float64
	tickPrices []float64 // short window of recent tick-level prices, for a quick realized-vol estimate

	archetypeCounts   map[simtypes.Archetype]int // since the last metrics sample
	tradesSinceSample int64

	throughputMode simtypes.ThroughputMode

	traders         []simtypes.Trader
	positions       map[string]*simtypes.Position
	closedPositions []simtypes.ClosedPosition
	recentTrades    []*simtypes.Trade // newest first; each on loan from tradePool until evicted
	totalTrades     int64

	lastMetrics simtypes.ThroughputMetrics

	book     *orderbook.Book
	priceEng *pricing.Engine
	candles  *candle.Aggregator
	dedup    *trader.DedupCache
	pacer    *external.Pacer
	risk     *riskMonitor
	pending  []simtypes.ExternalOrder
	rng      *rand.Rand

	tradePool *pool.Pool[*simtypes.Trade]
	posPool   *pool.Pool[*simtypes.Position]

	cancelTick    chan struct{}
	cancelMetrics chan struct{}

	broadcaster Broadcaster
	cfg         *config.Config
	logger      *slog.Logger
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Snapshot is the externally visible session state: returned by getSession
// and broadcast as price_update.
type Snapshot struct {
	ID             string                     `json:"id"`
	State          simtypes.SessionState      `json:"state"`
	Paused         bool                       `json:"paused"`
	Price          float64                    `json:"price"`
	Clock          int64                      `json:"clock"`
	Trend          simtypes.Trend             `json:"trend"`
	Volatility     float64                    `json:"volatility"`
	Candles        []simtypes.Candle          `json:"candles"`
	RecentTrades   []simtypes.Trade           `json:"recent_trades"`
	Book           simtypes.OrderBook         `json:"order_book"`
	Rankings       []simtypes.RankedTrader    `json:"rankings"`
	Metrics        simtypes.ThroughputMetrics `json:"metrics"`
	ThroughputMode simtypes.ThroughputMode    `json:"throughput_mode"`
	TotalTrades    int64                      `json:"total_trades"`
}

// Snapshot returns a read-only copy of the session's observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	n := len(s.recentTrades)
	if n > 1000 {
		n = 1000
	}
	recent := make([]simtypes.Trade, n)
	for i := 0; i < n; i++ {
		recent[i] = *s.recentTrades[i]
	}

	var candles []simtypes.Candle
	if s.candles != nil {
		candles = s.candles.History(250)
	}

	var book simtypes.OrderBook
	if s.book != nil {
		book = s.book.Snapshot()
	}

	return Snapshot{
		ID:             s.id,
		State:          s.state,
		Paused:         s.paused,
		Price:          s.price,
		Clock:          s.clock,
		Trend:          s.trend,
		Volatility:     s.volatility,
		Candles:        candles,
		RecentTrades:   recent,
		Book:           book,
		Rankings:       trader.Rank(s.traders, 20),
		Metrics:        s.lastMetrics,
		ThroughputMode: s.throughputMode,
		TotalTrades:    s.totalTrades,
	}
}

// State returns the current lifecycle state under lock.
func (s *Session) State() simtypes.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// runningLocked reports running∧¬paused. Caller must hold mu.
func (s *Session) runningLocked() bool {
	return s.state == simtypes.StateRunning && !s.paused
}

// requireStateLocked returns simerr.ErrInvalidState unless the session is
// currently in one of the allowed states. Caller must hold mu.
func (s *Session) requireStateLocked(allowed ...simtypes.SessionState) error {
	for _, st := range allowed {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: session %s is %s", simerr.ErrInvalidState, s.id, s.state)
}

// pushTrade prepends t to the recent-trades list, releasing anything
// evicted past cap back to the trade pool.
func (s *Session) pushTrade(t *simtypes.Trade, cap int) {
	s.recentTrades = append([]*simtypes.Trade{t}, s.recentTrades...)
	if cap > 0 && len(s.recentTrades) > cap {
		evicted := s.recentTrades[cap:]
		s.recentTrades = s.recentTrades[:cap]
		for _, e := range evicted {
			s.tradePool.Release(e)
		}
	}
	s.totalTrades++
}

func (s *Session) pushClosed(c simtypes.ClosedPosition, cap int) {
	s.closedPositions = append(s.closedPositions, c)
	if cap > 0 && len(s.closedPositions) > cap {
		s.closedPositions = s.closedPositions[len(s.closedPositions)-cap:]
	}
}
