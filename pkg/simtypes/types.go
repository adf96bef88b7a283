// Package simtypes defines shared data structures used across all packages.
//
// This package is the common vocabulary for the simulation engine — trades,
// positions, candles, the order book, trader profiles, and throughput modes.
// It has no dependencies on internal packages, so it can be imported by any
// layer. Following the teacher's flattened-reference guidance, Trade and
// Position carry a TraderID string rather than a pointer to the trader: the
// trader table lives on the session and is looked up by that ID.
package simtypes

import (
	"math"
	"time"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of a trade: buy or sell.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trend classifies the market regime derived from recent returns.
type Trend string

const (
	TrendBullish   Trend = "bullish"
	TrendBearish   Trend = "bearish"
	TrendSideways  Trend = "sideways"
)

// RiskClass buckets a trader's tolerance for drawdown and sizing.
type RiskClass string

const (
	RiskConservative RiskClass = "conservative"
	RiskModerate     RiskClass = "moderate"
	RiskAggressive   RiskClass = "aggressive"
)

// Strategy labels the decision rule a trader follows each tick.
type Strategy string

const (
	StrategyScalper    Strategy = "scalper"
	StrategySwing      Strategy = "swing"
	StrategyMomentum   Strategy = "momentum"
	StrategyContrarian Strategy = "contrarian"
)

// ThroughputMode selects the target external-order rate and per-tick cap.
// The archetype mix of external orders does not vary with the mode.
type ThroughputMode string

const (
	ThroughputNormal ThroughputMode = "NORMAL"
	ThroughputBurst  ThroughputMode = "BURST"
	ThroughputStress ThroughputMode = "STRESS"
	ThroughputHFT    ThroughputMode = "HFT"
)

// TargetTPS returns the target external orders-per-second for the mode.
func (m ThroughputMode) TargetTPS() float64 {
	switch m {
	case ThroughputBurst:
		return 150
	case ThroughputStress:
		return 1500
	case ThroughputHFT:
		return 15000
	default:
		return 25
	}
}

// TickCap returns the per-tick external order cap for the mode.
func (m ThroughputMode) TickCap() int {
	switch m {
	case ThroughputBurst:
		return 10
	case ThroughputStress:
		return 100
	case ThroughputHFT:
		return 1000
	default:
		return 1
	}
}

// Archetype is an external-trader behavior profile.
type Archetype string

const (
	ArchetypeArbitrageBot Archetype = "arbitrage_bot"
	ArchetypeRetailTrader Archetype = "retail_trader"
	ArchetypeMarketMaker  Archetype = "market_maker"
	ArchetypeMEVBot       Archetype = "mev_bot"
	ArchetypeWhale        Archetype = "whale"
	ArchetypePanicSeller  Archetype = "panic_seller"
)

// SessionState is the lifecycle controller's state machine value.
type SessionState string

const (
	StateCreating    SessionState = "creating"
	StateRegistering SessionState = "registering"
	StateReady       SessionState = "ready"
	StateStarting    SessionState = "starting"
	StateRunning     SessionState = "running"
	StateStopped     SessionState = "stopped"
	StateDeleted     SessionState = "deleted"
)

// ————————————————————————————————————————————————————————————————————————
// Trade / position / trader
// ————————————————————————————————————————————————————————————————————————

// Trade is an immutable, published execution record.
type Trade struct {
	ID            string    `json:"id"`
	Clock         int64     `json:"clock"` // simulated clock, ms
	TraderID      string    `json:"trader_id"`
	Action        Side      `json:"action"`
	Price         float64   `json:"price"`
	Quantity      float64   `json:"quantity"`
	Notional      float64   `json:"notional"`
	PriceImpact   float64   `json:"price_impact"` // unsigned fraction; book fills cap it at 0.08
	Archetype     Archetype `json:"archetype,omitempty"`
	PublishedAt   time.Time `json:"published_at"`
}

// Reset zeroes a Trade in place so it can be returned to its pool.
func (t *Trade) Reset() {
	*t = Trade{}
}

// Position represents one trader's open exposure. Sign of Quantity encodes
// long (positive) or short (negative).
type Position struct {
	TraderID    string  `json:"trader_id"`
	EntryPrice  float64 `json:"entry_price"`
	Quantity    float64 `json:"quantity"`
	EntryClock  int64   `json:"entry_clock"`
	PnL         float64 `json:"pnl"`
	PnLFraction float64 `json:"pnl_fraction"`
}

// Reset zeroes a Position in place so it can be returned to its pool.
func (p *Position) Reset() {
	*p = Position{}
}

// ClosedPosition is a terminal record appended when a Position is released.
type ClosedPosition struct {
	TraderID    string  `json:"trader_id"`
	EntryPrice  float64 `json:"entry_price"`
	ExitPrice   float64 `json:"exit_price"`
	Quantity    float64 `json:"quantity"`
	EntryClock  int64   `json:"entry_clock"`
	ExitClock   int64   `json:"exit_clock"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// TraderParams holds a trader's immutable behavioral parameters.
type TraderParams struct {
	EntryThreshold       float64
	ExitProfitThreshold  float64
	ExitLossThreshold    float64
	MinHoldingPeriodMS   int64
	MaxHoldingPeriodMS   int64
	TradingFrequency     float64
	SentimentSensitivity float64
	StopLoss             float64
	TakeProfit           float64
}

// Trader is a profile for one simulated market participant.
type Trader struct {
	WalletID      string       `json:"wallet_id"`
	LifetimeVolume float64     `json:"lifetime_volume"`
	BuyVolume     float64      `json:"buy_volume"`
	SellVolume    float64      `json:"sell_volume"`
	TradeCount    int64        `json:"trade_count"`
	NetPnL        float64      `json:"net_pnl"`
	WinRate       float64      `json:"win_rate"`
	RiskClass     RiskClass    `json:"risk_class"`
	Strategy      Strategy     `json:"strategy"`
	Params        TraderParams `json:"-"`
}

// ————————————————————————————————————————————————————————————————————————
// Order book
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is one rung of the order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is the two-sided depth of book for the simulated instrument.
type OrderBook struct {
	Bids      []PriceLevel `json:"bids"` // price descending
	Asks      []PriceLevel `json:"asks"` // price ascending
	Mid       float64      `json:"mid"`
	UpdatedAt int64        `json:"updated_at"` // simulated clock, ms
}

// ExternalOrder is a single synthesized exogenous order to be walked against
// the book by the matching routine.
type ExternalOrder struct {
	Action    Side
	Price     float64
	Quantity  float64
	Archetype Archetype
	Priority  int
	Clock     int64
}

// ————————————————————————————————————————————————————————————————————————
// Candles
// ————————————————————————————————————————————————————————————————————————

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime int64   `json:"open_time"` // bar-open simulated clock, ms
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

// Valid reports whether the OHLC invariant holds.
func (c Candle) Valid() bool {
	if !finitePositive(c.Open) || !finitePositive(c.High) || !finitePositive(c.Low) || !finitePositive(c.Close) {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	lo := min4(c.Open, c.Close)
	hi := max4(c.Open, c.Close)
	return c.Low <= lo && lo <= hi && hi <= c.High
}

func finitePositive(v float64) bool {
	return v > 0 && v < 1e6 && !math.IsNaN(v) && !math.IsInf(v, 0)
}

func min4(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max4(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ————————————————————————————————————————————————————————————————————————
// Rankings / sampling
// ————————————————————————————————————————————————————————————————————————

// RankedTrader is one row of the leaderboard sorted by net P&L.
type RankedTrader struct {
	WalletID string  `json:"wallet_id"`
	NetPnL   float64 `json:"net_pnl"`
	Rank     int     `json:"rank"`
}

// ThroughputMetrics is the snapshot reported on the metrics cadence.
type ThroughputMetrics struct {
	ActualTPS          float64   `json:"actual_tps"`
	ConfiguredTPS      float64   `json:"configured_tps"`
	QueueDepth         int       `json:"queue_depth"`
	Sentiment          Trend     `json:"sentiment"`
	DominantArchetype  Archetype `json:"dominant_archetype"`
	LiquidationRisk    float64   `json:"liquidation_risk"`
}
