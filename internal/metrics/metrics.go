// Package metrics exposes Prometheus collectors for the engine's
// throughput metrics, sampled on the 2s metrics cadence.
//
// Grounded on the teacher's metrics.go: package-level CounterVec/GaugeVec
// variables registered in init(), one metric per concern, labeled where a
// dimension varies.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ActualTPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simengine_actual_tps",
			Help: "Actual external orders processed per second.",
		},
		[]string{"session_id"},
	)

	ConfiguredTPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simengine_configured_tps",
			Help: "Configured target external orders per second for the active throughput mode.",
		},
		[]string{"session_id"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simengine_queue_depth",
			Help: "Pending external orders not yet drained this tick.",
		},
		[]string{"session_id"},
	)

	DominantArchetype = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simengine_dominant_archetype",
			Help: "Indicator set to 1 for the currently dominant external-trader archetype.",
		},
		[]string{"session_id", "archetype"},
	)

	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simengine_trades_total",
			Help: "Trades published, by origin.",
		},
		[]string{"session_id", "origin"},
	)

	PoolHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "simengine_pool_in_use",
			Help: "Objects currently checked out of a pool.",
		},
		[]string{"pool"},
	)
)

func init() {
	prometheus.MustRegister(ActualTPS, ConfiguredTPS, QueueDepth, DominantArchetype, TradesTotal, PoolHealth)
}
