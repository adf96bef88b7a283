package external

import (
	"math"
	"math/rand"
	"sort"

	"simengine/pkg/simtypes"
)

const mevNotionalThreshold = 10000

// TickBudget returns the number of orders to synthesize this tick, capped
// per the throughput mode's tick cap.
func TickBudget(mode simtypes.ThroughputMode, deltaMS float64) int {
	raw := mode.TargetTPS() * deltaMS / 1000
	n := int(math.Ceil(raw))
	if cap := mode.TickCap(); n > cap {
		n = cap
	}
	if n < 0 {
		n = 0
	}
	return n
}

// sampleArchetype draws an archetype from the fixed weighted mix of
// WeightedMix. The mix is the same in every throughput mode.
func sampleArchetype(rng *rand.Rand) simtypes.Archetype {
	order, cumulative := WeightedMix()
	r := rng.Float64()
	for i, c := range cumulative {
		if r <= c {
			return order[i]
		}
	}
	return order[len(order)-1]
}

// Generate produces up to budget orders for this tick, each archetype
// sampled from the fixed weighted mix; the throughput mode sets only the
// budget, not the mix.
func Generate(budget int, mid, initialPrice float64, trend simtypes.Trend, rng *rand.Rand, clock int64) []simtypes.ExternalOrder {
	orders := make([]simtypes.ExternalOrder, 0, budget)
	for i := 0; i < budget; i++ {
		archetype := sampleArchetype(rng)
		order, ok := constructOrder(archetype, mid, initialPrice, trend, rng, clock)
		if ok {
			orders = append(orders, order)
		}
	}
	return orders
}

func constructOrder(archetype simtypes.Archetype, mid, initialPrice float64, trend simtypes.Trend, rng *rand.Rand, clock int64) (simtypes.ExternalOrder, bool) {
	cfg := Configs[archetype]

	side, ok := sideFor(archetype, cfg, mid, initialPrice, trend, rng)
	if !ok {
		return simtypes.ExternalOrder{}, false
	}

	deviation := math.Abs(rng.NormFloat64()) * cfg.Deviation
	price := mid * (1 + deviation)
	if side == simtypes.Sell {
		price = mid * (1 - deviation)
	}

	notional := cfg.SizeMinUSD + rng.Float64()*(cfg.SizeMaxUSD-cfg.SizeMinUSD)
	quantity := notional / price

	return simtypes.ExternalOrder{
		Action:    side,
		Price:     price,
		Quantity:  quantity,
		Archetype: archetype,
		Priority:  cfg.Priority,
		Clock:     clock,
	}, true
}

func sideFor(archetype simtypes.Archetype, cfg ArchetypeConfig, mid, initialPrice float64, trend simtypes.Trend, rng *rand.Rand) (simtypes.Side, bool) {
	switch archetype {
	case simtypes.ArchetypeArbitrageBot, simtypes.ArchetypeMarketMaker:
		if rng.Float64() < 0.5 {
			return simtypes.Buy, true
		}
		return simtypes.Sell, true

	case simtypes.ArchetypeRetailTrader:
		switch trend {
		case simtypes.TrendBullish:
			return simtypes.Buy, true
		case simtypes.TrendBearish:
			return simtypes.Sell, true
		default:
			if rng.Float64() < 0.5 {
				return simtypes.Buy, true
			}
			return simtypes.Sell, true
		}

	case simtypes.ArchetypeWhale:
		if mid < 0.9*initialPrice {
			return simtypes.Buy, true
		}
		if mid > 1.2*initialPrice {
			return simtypes.Sell, true
		}
		return "", false

	case simtypes.ArchetypePanicSeller:
		return simtypes.Sell, true

	default:
		if cfg.SellOnly {
			return simtypes.Sell, true
		}
		if rng.Float64() < 0.5 {
			return simtypes.Buy, true
		}
		return simtypes.Sell, true
	}
}

// DrainQueue sorts pending orders priority-then-FIFO and returns at most
// cap of them, leaving the remainder for a later tick.
func DrainQueue(pending []simtypes.ExternalOrder, cap int) (toProcess, remaining []simtypes.ExternalOrder) {
	sorted := append([]simtypes.ExternalOrder(nil), pending...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	if cap >= len(sorted) {
		return sorted, nil
	}
	return sorted[:cap], sorted[cap:]
}

// LiquidationCascade produces 10-30 descending-price panic-seller orders
// with staggered clocks and escalating discount, available only in STRESS
// or HFT mode. priority is fixed at 3 per the documented cascade spec.
func LiquidationCascade(mid float64, rng *rand.Rand, baseClock int64, tickIntervalMS int64) []simtypes.ExternalOrder {
	n := 10 + rng.Intn(21) // [10, 30]
	orders := make([]simtypes.ExternalOrder, n)
	for i := 0; i < n; i++ {
		discount := float64(i+1) * 0.01
		orders[i] = simtypes.ExternalOrder{
			Action:    simtypes.Sell,
			Price:     mid * (1 - discount),
			Quantity:  (500 + rng.Float64()*10000) / mid,
			Archetype: simtypes.ArchetypePanicSeller,
			Priority:  3,
			Clock:     baseClock + int64(i)*tickIntervalMS,
		}
	}
	return orders
}

// EstimatedImpact returns notional/marketCap for a cascade, used in the
// triggerLiquidationCascade response.
func EstimatedImpact(orders []simtypes.ExternalOrder, marketCap float64) float64 {
	if marketCap <= 0 {
		return 0
	}
	var notional float64
	for _, o := range orders {
		notional += o.Price * o.Quantity
	}
	return notional / marketCap
}

// DetectFrontRun returns a co-directional MEV front-runner for a large
// incoming order (notional > 10,000), at +-0.1% of mid and 30% of the
// prey's notional, or false if the incoming order is too small to trigger.
func DetectFrontRun(incoming simtypes.ExternalOrder, mid float64, clock int64) (simtypes.ExternalOrder, bool) {
	notional := incoming.Price * incoming.Quantity
	if notional <= mevNotionalThreshold {
		return simtypes.ExternalOrder{}, false
	}

	deviation := 0.001
	price := mid * (1 + deviation)
	if incoming.Action == simtypes.Sell {
		price = mid * (1 - deviation)
	}

	preyNotional := notional * 0.3
	return simtypes.ExternalOrder{
		Action:    incoming.Action,
		Price:     price,
		Quantity:  preyNotional / price,
		Archetype: simtypes.ArchetypeMEVBot,
		Priority:  5,
		Clock:     clock,
	}, true
}
