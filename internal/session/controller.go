package session

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"simengine/internal/candle"
	"simengine/internal/config"
	"simengine/internal/external"
	"simengine/internal/metrics"
	"simengine/internal/orderbook"
	"simengine/internal/pool"
	"simengine/internal/pricing"
	"simengine/internal/simerr"
	"simengine/internal/trader"
	"simengine/internal/traderdata"
	"simengine/pkg/simtypes"
)

// Controller is the process-wide lifecycle gate: it enforces the
// single-active-session policy, owns the shared candle-aggregator registry
// and object pools, and dispatches the Session API operations.
//
// Grounded on the teacher's Engine (internal/engine/engine.go): a single
// struct owning a map of live instances behind a mutex, plus shared
// subsystem registries, generalized here from "N concurrently traded
// markets" to "at most one active simulation session".
type Controller struct {
	mu       sync.Mutex
	sessions map[string]*Session
	activeID string // non-empty while a session is in any non-terminal state

	candles     *candle.Registry
	tradePool   *pool.Pool[*simtypes.Trade]
	posPool     *pool.Pool[*simtypes.Position]
	traderCache *traderdata.Cache
	broadcaster Broadcaster

	cfg    *config.Config
	logger *slog.Logger

	cancelPoolMonitor chan struct{}
}

// poolMonitorPeriod is the global pool-monitor task's cadence (spec's
// scheduling model, item (c): one global pool-monitor task at 30s).
const poolMonitorPeriod = 30 * time.Second

// NewController wires the shared subsystems from cfg and starts the
// process-wide pool-monitor task.
func NewController(cfg *config.Config, logger *slog.Logger, traderCache *traderdata.Cache, broadcaster Broadcaster) *Controller {
	if broadcaster == nil {
		broadcaster = NopBroadcaster{}
	}
	c := &Controller{
		sessions:          make(map[string]*Session),
		candles:           candle.NewRegistry(cfg.Engine.CandleHistoryCap, logger),
		tradePool:         pool.New("trades", cfg.Pools.TradeCapacity, func() *simtypes.Trade { return &simtypes.Trade{} }, logger),
		posPool:           pool.New("positions", cfg.Pools.PositionCapacity, func() *simtypes.Position { return &simtypes.Position{} }, logger),
		traderCache:       traderCache,
		broadcaster:       broadcaster,
		cfg:               cfg,
		logger:            logger.With("component", "session_controller"),
		cancelPoolMonitor: make(chan struct{}),
	}
	go c.runPoolMonitor(c.cancelPoolMonitor)
	return c
}

// runPoolMonitor polls both shared pools' HealthReports on a fixed cadence
// and logs anything unhealthy, independent of whether a session is active.
func (c *Controller) runPoolMonitor(cancel chan struct{}) {
	ticker := time.NewTicker(poolMonitorPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			c.checkPoolHealth()
		}
	}
}

func (c *Controller) checkPoolHealth() {
	for _, h := range []pool.HealthReport{c.tradePool.Health(), c.posPool.Health()} {
		metrics.PoolHealth.WithLabelValues(h.Name).Set(float64(h.InUse))
		if !h.Healthy {
			c.logger.Warn("pool unhealthy", "pool", h.Name, "in_use", h.InUse, "capacity", h.Capacity, "drift", h.Drift)
		}
	}
}

func isTerminal(state simtypes.SessionState) bool {
	return state == simtypes.StateStopped || state == simtypes.StateDeleted
}

// Shutdown stops every non-terminal session's tick loop and the pool
// monitor, for clean process exit. Sessions remain queryable afterward; it
// does not delete them.
func (c *Controller) Shutdown() {
	safeClose(c.cancelPoolMonitor)

	c.mu.Lock()
	ids := make([]string, 0, len(c.sessions))
	for id, s := range c.sessions {
		if !isTerminal(s.State()) {
			ids = append(ids, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if _, err := c.StopSession(id); err != nil {
			c.logger.Warn("failed to stop session during shutdown", "session_id", id, "error", err)
		}
	}
}

// CreateSession creates a new session, or returns the existing one if the
// single-active-session policy is already held by a non-terminal session.
func (c *Controller) CreateSession(params CreateParams) (*Session, error) {
	c.mu.Lock()
	if c.activeID != "" {
		if existing, ok := c.sessions[c.activeID]; ok && !isTerminal(existing.State()) {
			c.mu.Unlock()
			return existing, nil
		}
	}
	c.mu.Unlock()

	id := uuid.New().String()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	initialPrice := params.CustomPrice
	if initialPrice <= 0 {
		initialPrice = pricing.SampleInitialPrice(rng)
	}

	speed := params.CompressionFactor
	if speed <= 0 {
		speed = 1
	}
	if speed > 200 {
		speed = 200
	}

	volMult := params.VolatilityMult
	if volMult <= 0 {
		volMult = 1
	}

	duration := params.DurationMinutes
	if duration <= 0 {
		duration = 5
	}

	liquidity := params.InitialLiquidity
	if liquidity <= 0 {
		liquidity = 1_000_000
	}

	s := &Session{
		id:               id,
		state:            simtypes.StateCreating,
		speed:            speed,
		volatilityMult:   volMult,
		initialPrice:     initialPrice,
		initialLiquidity: liquidity,
		price:            initialPrice,
		trend:            simtypes.TrendSideways,
		throughputMode:   simtypes.ThroughputNormal,
		positions:        make(map[string]*simtypes.Position),
		archetypeCounts:  make(map[simtypes.Archetype]int),
		rng:              rng,
		tradePool:        c.tradePool,
		posPool:          c.posPool,
		risk:             newRiskMonitor(50),
		broadcaster:      c.broadcaster,
		cfg:              c.cfg,
		logger:           c.logger.With("session", id),
	}

	s.state = simtypes.StateRegistering
	s.traders = c.loadTraderPopulation(rng)
	s.book = orderbook.New(orderbook.Config{
		DefaultSpreadPct: c.cfg.Engine.DefaultSpreadPct,
		MinOrderSize:     c.cfg.Engine.MinOrderSize,
		DepthLevels:      c.cfg.Engine.DepthLevels,
	}, initialPrice, liquidity)
	s.priceEng = pricing.NewEngine()
	s.candles = c.acquireCandleAggregator(id, initialPrice)
	s.dedup = trader.NewDedupCache()
	s.pacer = external.NewPacer(simtypes.ThroughputNormal)
	s.endClock = int64(duration) * 60 * 1000

	s.state = simtypes.StateReady

	c.mu.Lock()
	c.sessions[id] = s
	c.activeID = id
	c.mu.Unlock()

	return s, nil
}

func (c *Controller) loadTraderPopulation(rng *rand.Rand) []simtypes.Trader {
	var raw []traderdata.RawTrader
	if c.traderCache != nil {
		raw = c.traderCache.Get("top_traders")
	} else {
		raw = traderdata.SyntheticPopulation(c.cfg.TraderData.SyntheticCount)
	}

	out := make([]simtypes.Trader, len(raw))
	for i, r := range raw {
		out[i] = traderdata.ToTrader(r, rng)
	}
	return out
}

// acquireCandleAggregator retries registry.GetOrCreate up to 3 times with
// exponential backoff (100ms·attempt) against a transient creation error,
// force-releasing to a standalone (unregistered) aggregator with a logged
// integrity warning if every attempt is lost to the 5s per-attempt lock
// timeout.
func (c *Controller) acquireCandleAggregator(sessionID string, initialPrice float64) *candle.Aggregator {
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		agg, err := c.tryAcquireCandleAggregator(sessionID, initialPrice)
		if err == nil {
			return agg
		}
		lastErr = err
		c.logger.Warn("candle aggregator acquire failed, retrying", "session", sessionID, "attempt", attempt, "err", err)
		time.Sleep(100 * time.Millisecond * time.Duration(attempt))
	}
	c.logger.Error("candle aggregator acquire exhausted retries, force-releasing lock", "session", sessionID, "err", lastErr)
	return candle.New(initialPrice, c.cfg.Engine.CandleHistoryCap, c.logger)
}

func (c *Controller) tryAcquireCandleAggregator(sessionID string, initialPrice float64) (*candle.Aggregator, error) {
	ch := make(chan *candle.Aggregator, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- nil
			}
		}()
		ch <- c.candles.GetOrCreate(sessionID, initialPrice)
	}()

	select {
	case agg := <-ch:
		if agg == nil {
			return nil, fmt.Errorf("panic during candle aggregator creation")
		}
		return agg, nil
	case <-time.After(c.cfg.Engine.LockTimeout):
		return nil, fmt.Errorf("timed out awaiting candle aggregator registry lock")
	}
}

// GetSession returns the session by id.
func (c *Controller) GetSession(id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", simerr.ErrNotFound, id)
	}
	return s, nil
}

// ListSessions returns every session the controller knows about.
func (c *Controller) ListSessions() []*Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		out = append(out, s)
	}
	return out
}

// SetSpeed updates a session's compression factor. Valid in ready or
// running states; n outside [1,200] is rejected with ErrInvalidState.
func (c *Controller) SetSpeed(id string, n float64) (float64, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 200 {
		return 0, fmt.Errorf("%w: speed must be in [1,200]", simerr.ErrInvalidState)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStateLocked(simtypes.StateReady, simtypes.StateRunning); err != nil {
		return 0, err
	}
	s.speed = n
	return n, nil
}

// StartSession transitions a ready session into running and launches its
// tick and metrics loops.
func (c *Controller) StartSession(id string) (simtypes.SessionState, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if err := s.requireStateLocked(simtypes.StateReady); err != nil {
		s.mu.Unlock()
		return "", err
	}
	s.state = simtypes.StateStarting
	s.cancelTick = make(chan struct{})
	s.cancelMetrics = make(chan struct{})
	s.state = simtypes.StateRunning
	cancelTick, cancelMetrics := s.cancelTick, s.cancelMetrics
	s.mu.Unlock()

	go s.runTickLoop(cancelTick)
	go s.runMetricsLoop(cancelMetrics)

	s.broadcaster.Broadcast(s.id, EventSimulationStatus, StatusEvent{State: string(simtypes.StateRunning), Paused: false})
	return simtypes.StateRunning, nil
}

// PauseSession implements the pause protocol. A second pause while one is
// already in flight fails fast with a concurrency-violation error.
func (c *Controller) PauseSession(id string) (simtypes.SessionState, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}
	if !s.opLock.TryLock() {
		return "", fmt.Errorf("%w: pause already in flight", simerr.ErrConcurrencyViolation)
	}
	defer s.opLock.Unlock()

	s.mu.Lock()
	if err := s.requireStateLocked(simtypes.StateRunning); err != nil {
		s.mu.Unlock()
		return "", err
	}
	if s.paused {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: already paused", simerr.ErrInvalidState)
	}
	s.paused = true
	cancelTick, cancelMetrics := s.cancelTick, s.cancelMetrics
	s.mu.Unlock()

	close(cancelTick)
	close(cancelMetrics)

	if s.candles != nil {
		s.candles.FinalizeCurrent()
	}
	s.tradePool.GC()
	s.posPool.GC()

	s.broadcaster.Broadcast(s.id, EventSimulationStatus, StatusEvent{State: string(simtypes.StateRunning), Paused: true})
	return simtypes.StateRunning, nil
}

// ResumeSession implements the resume protocol.
func (c *Controller) ResumeSession(id string) (simtypes.SessionState, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}
	if !s.opLock.TryLock() {
		return "", fmt.Errorf("%w: resume already in flight", simerr.ErrConcurrencyViolation)
	}
	defer s.opLock.Unlock()

	s.mu.Lock()
	if err := s.requireStateLocked(simtypes.StateRunning); err != nil || !s.paused {
		s.mu.Unlock()
		if err != nil {
			return "", err
		}
		return "", fmt.Errorf("%w: session is not paused", simerr.ErrInvalidState)
	}
	s.paused = false
	s.cancelTick = make(chan struct{})
	s.cancelMetrics = make(chan struct{})
	cancelTick, cancelMetrics := s.cancelTick, s.cancelMetrics
	s.mu.Unlock()

	if _, ok := c.candles.Get(id); !ok {
		s.mu.Lock()
		s.candles = c.acquireCandleAggregator(id, s.initialPrice)
		s.mu.Unlock()
	}

	go s.runTickLoop(cancelTick)
	go s.runMetricsLoop(cancelMetrics)

	s.broadcaster.Broadcast(s.id, EventSimulationStatus, StatusEvent{State: string(simtypes.StateRunning), Paused: false})
	return simtypes.StateRunning, nil
}

// StopSession implements the stop protocol: cancel timers, run final
// cleanup, emit stopped. The session remains present until delete.
func (c *Controller) StopSession(id string) (simtypes.SessionState, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}

	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.mu.Lock()
	wasRunning := s.state == simtypes.StateRunning
	cancelTick, cancelMetrics := s.cancelTick, s.cancelMetrics
	s.paused = false
	s.state = simtypes.StateStopped
	s.mu.Unlock()

	if wasRunning {
		safeClose(cancelTick)
		safeClose(cancelMetrics)
	}

	s.tradePool.GC()
	s.posPool.GC()

	s.broadcaster.Broadcast(s.id, EventSimulationStatus, StatusEvent{State: string(simtypes.StateStopped), Paused: false})
	return simtypes.StateStopped, nil
}

// ResetSession restores a session to ready: releases pooled objects,
// clears candle history, rebuilds the book around a fresh price, resets
// throughput mode to NORMAL, and zeros accumulated metrics. Does not
// auto-start.
func (c *Controller) ResetSession(id string) (simtypes.SessionState, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}

	if s.State() == simtypes.StateRunning {
		if _, err := c.StopSession(id); err != nil {
			return "", err
		}
	}

	s.opLock.Lock()
	defer s.opLock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pos := range s.positions {
		s.posPool.Release(pos)
	}
	s.positions = make(map[string]*simtypes.Position)

	for _, t := range s.recentTrades {
		s.tradePool.Release(t)
	}
	s.recentTrades = nil
	s.closedPositions = nil
	s.totalTrades = 0
	s.pending = nil
	s.archetypeCounts = make(map[simtypes.Archetype]int)
	s.tradesSinceSample = 0

	freshPrice := pricing.SampleInitialPrice(s.rng)
	s.initialPrice = freshPrice
	s.price = freshPrice
	s.trend = simtypes.TrendSideways
	s.barHistory = nil
	s.tickPrices = nil
	s.lastMetrics = simtypes.ThroughputMetrics{}
	s.throughputMode = simtypes.ThroughputNormal
	s.pacer = external.NewPacer(simtypes.ThroughputNormal)
	s.risk = newRiskMonitor(50)
	s.priceEng = pricing.NewEngine()
	s.clock = 0
	s.dedup = trader.NewDedupCache()

	s.book = orderbook.New(orderbook.Config{
		DefaultSpreadPct: s.cfg.Engine.DefaultSpreadPct,
		MinOrderSize:     s.cfg.Engine.MinOrderSize,
		DepthLevels:      s.cfg.Engine.DepthLevels,
	}, freshPrice, s.initialLiquidity)

	if s.candles != nil {
		s.candles.Reset(freshPrice)
	} else {
		s.candles = c.acquireCandleAggregator(id, freshPrice)
	}

	s.state = simtypes.StateReady

	s.broadcaster.Broadcast(s.id, EventSimulationReset, s.snapshotLocked())
	return simtypes.StateReady, nil
}

// DeleteSession stops the session, releases all pooled objects, disposes
// the candle aggregator, and releases the global single-session slot.
func (c *Controller) DeleteSession(id string) error {
	s, err := c.GetSession(id)
	if err != nil {
		return err
	}

	if s.State() == simtypes.StateRunning {
		if _, err := c.StopSession(id); err != nil {
			return err
		}
	}

	s.mu.Lock()
	for _, pos := range s.positions {
		s.posPool.Release(pos)
	}
	s.positions = nil
	for _, t := range s.recentTrades {
		s.tradePool.Release(t)
	}
	s.recentTrades = nil
	s.state = simtypes.StateDeleted
	s.mu.Unlock()

	c.candles.Release(id)

	c.mu.Lock()
	delete(c.sessions, id)
	if c.activeID == id {
		c.activeID = ""
	}
	c.mu.Unlock()

	return nil
}

// SetThroughputMode switches the external order generator's target rate
// and archetype mix, returning the previous mode.
func (c *Controller) SetThroughputMode(id string, mode simtypes.ThroughputMode) (simtypes.ThroughputMode, error) {
	switch mode {
	case simtypes.ThroughputNormal, simtypes.ThroughputBurst, simtypes.ThroughputStress, simtypes.ThroughputHFT:
	default:
		return "", fmt.Errorf("%w: %s", simerr.ErrUnknownMode, mode)
	}

	s, err := c.GetSession(id)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.throughputMode
	s.throughputMode = mode
	s.pacer.SetMode(mode)
	return previous, nil
}

// CascadeResult is the response to triggerLiquidationCascade.
type CascadeResult struct {
	Generated       int     `json:"generated"`
	EstimatedImpact float64 `json:"estimated_impact"`
	CascadeSize     int     `json:"cascade_size"`
}

// TriggerLiquidationCascade enqueues a liquidation cascade, available only
// in STRESS or HFT throughput mode.
func (c *Controller) TriggerLiquidationCascade(id string) (CascadeResult, error) {
	s, err := c.GetSession(id)
	if err != nil {
		return CascadeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.throughputMode != simtypes.ThroughputStress && s.throughputMode != simtypes.ThroughputHFT {
		return CascadeResult{}, fmt.Errorf("%w: liquidation cascade requires STRESS or HFT mode", simerr.ErrWrongMode)
	}

	tickMS := int64(s.cfg.Engine.TickPeriod / time.Millisecond)
	orders := external.LiquidationCascade(s.price, s.rng, s.clock, tickMS)
	s.pending = append(s.pending, orders...)
	impact := external.EstimatedImpact(orders, s.initialLiquidity)

	result := CascadeResult{Generated: len(orders), EstimatedImpact: impact, CascadeSize: len(orders)}
	s.broadcaster.Broadcast(s.id, EventLiquidationCascade, CascadeEvent{
		Generated:       result.Generated,
		EstimatedImpact: result.EstimatedImpact,
		CascadeSize:     result.CascadeSize,
	})
	return result, nil
}

func safeClose(ch chan struct{}) {
	select {
	case <-ch:
	default:
		close(ch)
	}
}
