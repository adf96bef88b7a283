// Package external synthesizes the exogenous order stream: per-archetype
// sizing and deviation, throughput-mode tick budgets, priority-ordered
// queue draining against the order book, liquidation cascades, and MEV
// front-run detection.
//
// Tick-budget pacing reuses the teacher's golang.org/x/time/rate idiom from
// its Polymarket HTTP client rate limiters (internal/adapters/polymarket in
// the polybot example repo: rate.NewLimiter with a capped burst), applied
// here to the rate of synthesized orders per second instead of outbound
// HTTP calls.
package external

import "simengine/pkg/simtypes"

// ArchetypeConfig describes one external-trader archetype's behavior.
type ArchetypeConfig struct {
	Archetype     simtypes.Archetype
	BaseFrequency float64 // relative weight within the archetype mix (one mix for all modes)
	SizeMinUSD    float64
	SizeMaxUSD    float64
	Deviation     float64 // stddev of |N(0, deviation)| from mid, as a fraction
	Priority      int     // 1 (lowest) .. 5 (highest)
	SellOnly      bool
}

// Configs is the fixed per-archetype configuration table.
var Configs = map[simtypes.Archetype]ArchetypeConfig{
	simtypes.ArchetypeArbitrageBot: {
		Archetype: simtypes.ArchetypeArbitrageBot, BaseFrequency: 0.25,
		SizeMinUSD: 500, SizeMaxUSD: 5000, Deviation: 0.0005, Priority: 4,
	},
	simtypes.ArchetypeRetailTrader: {
		Archetype: simtypes.ArchetypeRetailTrader, BaseFrequency: 0.35,
		SizeMinUSD: 50, SizeMaxUSD: 2000, Deviation: 0.01, Priority: 1,
	},
	simtypes.ArchetypeMarketMaker: {
		Archetype: simtypes.ArchetypeMarketMaker, BaseFrequency: 0.20,
		SizeMinUSD: 1000, SizeMaxUSD: 10000, Deviation: 0.002, Priority: 3,
	},
	simtypes.ArchetypeMEVBot: {
		Archetype: simtypes.ArchetypeMEVBot, BaseFrequency: 0.05,
		SizeMinUSD: 2000, SizeMaxUSD: 20000, Deviation: 0.0001, Priority: 5,
	},
	simtypes.ArchetypeWhale: {
		Archetype: simtypes.ArchetypeWhale, BaseFrequency: 0.05,
		SizeMinUSD: 20000, SizeMaxUSD: 500000, Deviation: 0.05, Priority: 2,
	},
	simtypes.ArchetypePanicSeller: {
		Archetype: simtypes.ArchetypePanicSeller, BaseFrequency: 0.10,
		SizeMinUSD: 500, SizeMaxUSD: 15000, Deviation: 0.10, Priority: 3, SellOnly: true,
	},
}

// WeightedMix returns the archetype list and cumulative weights for
// sampling, in a fixed deterministic order.
func WeightedMix() ([]simtypes.Archetype, []float64) {
	order := []simtypes.Archetype{
		simtypes.ArchetypeArbitrageBot,
		simtypes.ArchetypeRetailTrader,
		simtypes.ArchetypeMarketMaker,
		simtypes.ArchetypeMEVBot,
		simtypes.ArchetypeWhale,
		simtypes.ArchetypePanicSeller,
	}
	cumulative := make([]float64, len(order))
	var sum float64
	for i, a := range order {
		sum += Configs[a].BaseFrequency
		cumulative[i] = sum
	}
	for i := range cumulative {
		cumulative[i] /= sum
	}
	return order, cumulative
}
