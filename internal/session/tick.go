package session

import (
	"math"
	"time"

	"github.com/google/uuid"

	"simengine/internal/candle"
	"simengine/internal/external"
	"simengine/internal/metrics"
	"simengine/internal/orderbook"
	"simengine/internal/pricing"
	"simengine/internal/trader"
	"simengine/pkg/simtypes"
)

// runTickLoop drives one session's tick cadence until cancel fires or a
// tick reports the end-of-simulation condition.
func (s *Session) runTickLoop(cancel chan struct{}) {
	ticker := time.NewTicker(s.cfg.Engine.TickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			if s.doTick() {
				return
			}
		}
	}
}

// runMetricsLoop recomputes and (throttled) broadcasts throughput metrics
// on the 2s cadence until cancel fires.
func (s *Session) runMetricsLoop(cancel chan struct{}) {
	ticker := time.NewTicker(s.cfg.Engine.MetricsPeriod)
	defer ticker.Stop()

	throttle := metrics.NewThrottle(s.cfg.Engine.BroadcastThrottle, s.cfg.Engine.BroadcastMaxAge)

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			s.sampleMetrics(throttle)
		}
	}
}

// doTick executes one full tick: §4.4 price engine, §4.5 trader engine,
// §4.6 external order generator, §4.3 order book, §4.2 candle aggregator,
// then the snapshot broadcast. Any panic inside is recovered and logged so
// the loop never aborts on one bad tick, per the tick-loop error policy.
// Returns true if the session hit its end condition and the caller should
// stop ticking.
func (s *Session) doTick() bool {
	snap, stop, ran, newTrades := s.doTickLocked()
	if !ran {
		return false
	}

	for _, t := range newTrades {
		s.broadcaster.Broadcast(s.id, EventProcessedTrade, t)
	}
	s.broadcaster.Broadcast(s.id, EventPriceUpdate, snap)

	if stop {
		safeClose(s.cancelMetrics)
		if s.candles != nil {
			s.candles.FinalizeCurrent()
		}
		s.broadcaster.Broadcast(s.id, EventSimulationStatus, StatusEvent{State: string(simtypes.StateRunning), Paused: true})
	}
	return stop
}

// doTickLocked performs the mutation under s.mu and returns the broadcast
// snapshot plus every trade produced this tick (for the caller to broadcast
// as processed_trade events once s.mu is released). ran is false if the
// session was not running∧¬paused when the tick fired (a benign race
// against a concurrent pause). A panic anywhere in the mutation is
// recovered and logged so the loop continues; the mutex still unlocks via
// defer in that case, so a bad tick can never deadlock the next one.
func (s *Session) doTickLocked() (snap Snapshot, stop bool, ran bool, newTrades []simtypes.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic inside tick, continuing", "err", r)
			ran = false
		}
	}()

	if !s.runningLocked() {
		return Snapshot{}, false, false, nil
	}

	subTicks := int(s.speed / 5)
	if subTicks < 1 {
		subTicks = 1
	}
	deltaMS := int64(50 * s.speed * 2)
	mode := trader.SelectActivityMode(s.speed)

	var tickVolume float64
	for i := 0; i < subTicks; i++ {
		tickVolume += s.runSubTick(mode, &newTrades)
	}

	if len(s.recentTrades) < 50 {
		tickVolume += s.backfillTrades(&newTrades)
	}

	s.clock += deltaMS
	s.book.Update(s.price, s.clock)
	s.risk.Observe(s.price)

	if s.candles != nil {
		s.candles.Ingest(s.clock, s.price, tickVolume)
	}

	if s.clock >= s.endClock {
		s.paused = true
		stop = true
	}

	return s.snapshotLocked(), stop, true, newTrades
}

// runSubTick advances price, runs the trader engine, synthesizes and drains
// external orders against the book, and returns the volume transacted.
// Every produced trade is copied onto newTrades for the caller to broadcast
// once it has released s.mu. Caller must hold s.mu.
func (s *Session) runSubTick(mode trader.ActivityMode, newTrades *[]simtypes.Trade) float64 {
	var volume float64

	// Rolling buy/sell notional imbalance over the last 100 trades, in [-1, 1].
	var buyNotional, sellNotional float64
	for i, t := range s.recentTrades {
		if i == 100 {
			break
		}
		if t.Action == simtypes.Buy {
			buyNotional += t.Notional
		} else {
			sellNotional += t.Notional
		}
	}
	var imbalance float64
	if total := buyNotional + sellNotional; total > 0 {
		imbalance = (buyNotional - sellNotional) / total
	}
	intervalVolMult := float64(candle.Interval(s.initialPrice)) / 15000.0
	regime := pricing.Regime(s.barHistory, s.price)

	s.price = s.priceEng.Update(s.price, imbalance, s.throughputMode, intervalVolMult*s.volatilityMult, regime, s.rng)
	s.trend = regime
	s.pushTickPrice(s.price)
	s.volatility = realizedVol(s.tickPrices)

	in := trader.TickInput{
		Traders:      s.traders,
		Positions:    s.positions,
		Mode:         mode,
		Trend:        s.trend,
		RealizedVol:  s.volatility,
		Price:        s.price,
		Clock:        s.clock,
		Rng:          s.rng,
		TradePool:    s.tradePool,
		PositionPool: s.posPool,
		Dedup:        s.dedup,
		Book:         s.book,
	}
	result := trader.Tick(in)

	for _, t := range result.Trades {
		t.ID = uuid.New().String()
		t.PublishedAt = time.Now()
		s.pushTrade(t, s.cfg.Engine.RecentTradesCap)
		*newTrades = append(*newTrades, *t)
		volume += t.Quantity
	}
	for _, c := range result.ClosedPositions {
		s.pushClosed(c, s.cfg.Engine.ClosedPositionsCap)
	}

	tickPeriodMS := float64(s.cfg.Engine.TickPeriod / time.Millisecond)
	budget := external.TickBudget(s.throughputMode, tickPeriodMS)
	orders := external.Generate(budget, s.price, s.initialPrice, s.trend, s.rng, s.clock)
	s.pending = append(s.pending, orders...)

	drainCap := mode.TargetTrades
	if tickCap := s.throughputMode.TickCap(); tickCap > drainCap {
		drainCap = tickCap
	}
	toProcess, remaining := external.DrainQueue(s.pending, drainCap)
	s.pending = remaining

	for _, order := range toProcess {
		if !s.pacer.Allow() {
			s.pending = append(s.pending, order)
			continue
		}

		s.archetypeCounts[order.Archetype]++

		trade, ok := s.book.Fill(order, s.price)
		if ok {
			s.price *= 1 + orderbook.SignedImpact(order.Action, trade.PriceImpact)
			pooled := s.tradePool.Acquire()
			*pooled = trade
			pooled.ID = uuid.New().String()
			pooled.PublishedAt = time.Now()
			s.pushTrade(pooled, s.cfg.Engine.RecentTradesCap)
			*newTrades = append(*newTrades, *pooled)
			s.tradesSinceSample++
			volume += pooled.Quantity
		}

		if mevOrder, triggered := external.DetectFrontRun(order, s.price, s.clock); triggered {
			s.pending = append(s.pending, mevOrder)
		}
	}

	return volume
}

// backfillTrades synthesizes 5-15 small retail-sized trades at controlled
// impact to keep the candle sequence from going degenerate when the real
// trade flow is thin, per the lifecycle controller's backfill policy. Every
// produced trade is copied onto newTrades for the caller to broadcast once
// it has released s.mu.
func (s *Session) backfillTrades(newTrades *[]simtypes.Trade) float64 {
	n := 5 + s.rng.Intn(11)
	var volume float64
	for i := 0; i < n; i++ {
		side := simtypes.Buy
		if s.rng.Float64() < 0.5 {
			side = simtypes.Sell
		}
		notional := 50 + s.rng.Float64()*450
		order := simtypes.ExternalOrder{
			Action:    side,
			Price:     s.price,
			Quantity:  notional / s.price,
			Archetype: simtypes.ArchetypeRetailTrader,
			Priority:  1,
			Clock:     s.clock,
		}
		trade, ok := s.book.Fill(order, s.price)
		if !ok {
			continue
		}
		s.price *= 1 + orderbook.SignedImpact(side, trade.PriceImpact)
		pooled := s.tradePool.Acquire()
		*pooled = trade
		pooled.ID = uuid.New().String()
		pooled.PublishedAt = time.Now()
		s.pushTrade(pooled, s.cfg.Engine.RecentTradesCap)
		*newTrades = append(*newTrades, *pooled)
		volume += pooled.Quantity
	}
	return volume
}

// pushTickPrice records price into the short realized-vol window. The
// longer bar-close window used by Regime() is refreshed separately from
// finalized candles in sampleMetrics.
func (s *Session) pushTickPrice(price float64) {
	s.tickPrices = append(s.tickPrices, price)
	if len(s.tickPrices) > 20 {
		s.tickPrices = s.tickPrices[len(s.tickPrices)-20:]
	}
}

func realizedVol(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(prices); i++ {
		r := (prices[i] - prices[i-1]) / prices[i-1]
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(prices)-1))
}

// sampleMetrics recomputes the throughput-metrics gauge, feeds the latest
// finalized candle's close into the price engine's bar-close window on
// every sample (the same close is fed again when no new bar has finalized
// since the previous sample), updates Prometheus collectors, and throttles
// the broadcast.
func (s *Session) sampleMetrics(throttle *metrics.Throttle) {
	s.mu.Lock()

	periodSeconds := s.cfg.Engine.MetricsPeriod.Seconds()
	tradesThisPeriod := s.tradesSinceSample
	actualTPS := float64(tradesThisPeriod) / periodSeconds
	s.tradesSinceSample = 0

	dominant := dominantArchetype(s.archetypeCounts)
	s.archetypeCounts = make(map[simtypes.Archetype]int)

	queueDepth := len(s.pending)
	liqRisk := s.risk.Score(s.throughputMode)

	snap := simtypes.ThroughputMetrics{
		ActualTPS:         actualTPS,
		ConfiguredTPS:     s.throughputMode.TargetTPS(),
		QueueDepth:        queueDepth,
		Sentiment:         s.trend,
		DominantArchetype: dominant,
		LiquidationRisk:   liqRisk,
	}
	s.lastMetrics = snap

	if s.candles != nil {
		if history := s.candles.History(15); len(history) > 0 {
			closes := make([]float64, len(history))
			for i, c := range history {
				closes[i] = c.Close
			}
			s.barHistory = closes
			s.priceEng.RecordBarClose(closes[len(closes)-1])
		}
	}

	sessionID := s.id
	s.mu.Unlock()

	metrics.ActualTPS.WithLabelValues(sessionID).Set(snap.ActualTPS)
	metrics.ConfiguredTPS.WithLabelValues(sessionID).Set(snap.ConfiguredTPS)
	metrics.QueueDepth.WithLabelValues(sessionID).Set(float64(snap.QueueDepth))
	if dominant != "" {
		metrics.DominantArchetype.WithLabelValues(sessionID, string(dominant)).Set(1)
	}
	metrics.TradesTotal.WithLabelValues(sessionID, "external").Add(float64(tradesThisPeriod))
	metrics.PoolHealth.WithLabelValues("trades").Set(float64(s.tradePool.Health().InUse))
	metrics.PoolHealth.WithLabelValues("positions").Set(float64(s.posPool.Health().InUse))

	if throttle.ShouldSend(snap, time.Now()) {
		s.broadcaster.Broadcast(sessionID, EventExternalMarketPressure, ExternalPressureEvent{
			CurrentTPS:         snap.ActualTPS,
			DominantTraderType: string(dominant),
			QueueDepth:         snap.QueueDepth,
		})
	}
}

func dominantArchetype(counts map[simtypes.Archetype]int) simtypes.Archetype {
	var best simtypes.Archetype
	var bestCount int
	for a, n := range counts {
		if n > bestCount {
			best, bestCount = a, n
		}
	}
	return best
}
