// Package pricing advances the simulated instrument's price each tick from
// a base volatility, an order-flow/scenario trend, and a fat-tailed random
// term, and classifies the resulting market regime.
//
// The per-tick update is grounded on the teacher's per-tick quoteUpdate
// flow in internal/strategy/maker.go (compute inputs, derive an adjustment,
// clamp, publish) generalized from a bid/ask quote adjustment into a single
// mark-price random walk, since the teacher has no price-generation concern
// of its own to borrow algorithmically — only its per-tick update shape.
package pricing

import (
	"math"

	"simengine/pkg/simtypes"
)

// BaseVolatility returns sigma_base for a price level.
func BaseVolatility(price float64) float64 {
	switch {
	case price < 5:
		return 0.025
	case price < 10:
		return 0.020
	case price < 20:
		return 0.018
	case price < 35:
		return 0.015
	default:
		return 0.012
	}
}

// Engine advances price state tick by tick for one session.
type Engine struct {
	scenario      Scenario
	scenarioTicks int

	barHistory []float64 // recent bar-close prices for the 15-bar mean reversion window
}

// NewEngine creates a price engine with no active scenario.
func NewEngine() *Engine {
	return &Engine{}
}

// SetScenario installs an active scenario, replacing any prior one.
func (e *Engine) SetScenario(s Scenario) {
	e.scenario = s
	e.scenarioTicks = 0
}

// ClearScenario removes the active scenario, if any.
func (e *Engine) ClearScenario() {
	e.scenario = nil
	e.scenarioTicks = 0
}

// ActiveScenario returns the name of the active scenario, or "" if none.
func (e *Engine) ActiveScenario() string {
	if e.scenario == nil {
		return ""
	}
	return e.scenario.Name()
}

// RecordBarClose feeds a finalized candle close into the mean-reversion
// window, retaining the last 15 values.
func (e *Engine) RecordBarClose(close float64) {
	e.barHistory = append(e.barHistory, close)
	if len(e.barHistory) > 15 {
		e.barHistory = e.barHistory[len(e.barHistory)-15:]
	}
}

// Update advances currentPrice by one tick given the rolling buy/sell
// imbalance over the last 100 trades, the active throughput mode, the bar
// interval's volatility multiplier, and the current market regime.
func (e *Engine) Update(currentPrice, imbalance float64, mode simtypes.ThroughputMode, intervalVolMultiplier float64, regime simtypes.Trend, rng Rand) float64 {
	sigma := BaseVolatility(currentPrice)
	sigma *= throughputVolScale(mode)
	sigma *= intervalVolMultiplier
	if math.Abs(imbalance) > 0.2 {
		sigma *= 2
	}

	trend, scenarioVolMult := e.trendTerm(imbalance, regime)
	sigma *= scenarioVolMult

	random := randomTerm(sigma, rng)
	microstructure := (rng.Float64()*2 - 1) * 0.0001

	next := currentPrice * (1 + trend + random + microstructure)
	if next <= 0 {
		next = currentPrice * 0.5 // floor guard, never non-positive
	}
	if e.scenario != nil {
		e.scenarioTicks++
		if e.scenario.Done(e.scenarioTicks) {
			e.ClearScenario()
		}
	}
	return next
}

// trendTerm returns the per-tick drift and the volatility multiplier to
// apply on top of the base sigma. While a scenario is active its bias
// replaces the order-flow/regime/mean-reversion trend entirely and its
// volatility multiplier is returned; otherwise the multiplier is 1.
func (e *Engine) trendTerm(imbalance float64, regime simtypes.Trend) (float64, float64) {
	if e.scenario != nil {
		bias, volMult := e.scenario.Bias(e.scenarioTicks)
		return bias, volMult
	}

	trend := imbalance * 0.001
	switch regime {
	case simtypes.TrendBullish:
		trend += 0.0002
	case simtypes.TrendBearish:
		trend -= 0.0002
	}

	if len(e.barHistory) > 0 {
		avg := average(e.barHistory)
		if avg > 0 {
			deviation := (e.barHistory[len(e.barHistory)-1] - avg) / avg
			if math.Abs(deviation) > 0.03 {
				trend -= deviation * 0.002
			}
		}
	}
	return trend, 1.0
}

// throughputVolScale returns a logarithmic volatility scaling factor keyed
// by target TPS.
func throughputVolScale(mode simtypes.ThroughputMode) float64 {
	tps := mode.TargetTPS()
	return 1 + math.Log10(tps/25)*0.1
}

// randomTerm samples the fat-tailed random component: 5% from a 4-sigma
// tail, 15% from a 2-sigma tail, otherwise 1-sigma.
func randomTerm(sigma float64, rng Rand) float64 {
	p := rng.Float64()
	z := rng.NormFloat64()
	switch {
	case p < 0.05:
		return z * sigma * 4
	case p < 0.20:
		return z * sigma * 2
	default:
		return z * sigma
	}
}

// Regime classifies the market trend label from the 5-bar return against
// +-1% thresholds (reduced for sub-$1 tokens), blended with a realized
// volatility estimate.
func Regime(barCloses []float64, currentPrice float64) simtypes.Trend {
	if len(barCloses) < 5 {
		return simtypes.TrendSideways
	}
	window := barCloses[len(barCloses)-5:]
	ret := (window[len(window)-1] - window[0]) / window[0]

	threshold := 0.01
	if currentPrice < 1 {
		threshold = 0.005
	}

	realizedVol := realizedVolatility(window) * 1.2
	if realizedVol > threshold {
		threshold = realizedVol
	}

	switch {
	case ret > threshold:
		return simtypes.TrendBullish
	case ret < -threshold:
		return simtypes.TrendBearish
	default:
		return simtypes.TrendSideways
	}
}

func realizedVolatility(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	var sumSq float64
	for i := 1; i < len(closes); i++ {
		r := (closes[i] - closes[i-1]) / closes[i-1]
		sumSq += r * r
	}
	return math.Sqrt(sumSq / float64(len(closes)-1))
}

func average(vs []float64) float64 {
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// Rand is the minimal randomness surface the price engine needs, so tests
// can inject deterministic sequences.
type Rand interface {
	Float64() float64
	NormFloat64() float64
}
