package session

// Event type tags for the per-session streaming surface.
const (
	EventPriceUpdate            = "price_update"
	EventProcessedTrade         = "processed_trade"
	EventExternalMarketPressure = "external_market_pressure"
	EventScenarioStarted        = "scenario_started"
	EventScenarioEnded          = "scenario_ended"
	EventSimulationReset        = "simulation_reset"
	EventLiquidationCascade     = "liquidation_cascade_triggered"
	EventSimulationStatus       = "simulation_status"
)

// Broadcaster is the narrow push-channel surface the tick loop and
// lifecycle operations publish to. Delivery is fire-and-forget: a
// Broadcaster implementation must not block the tick loop on I/O, matching
// the teacher's emitDashboardEvent non-blocking-send idiom.
type Broadcaster interface {
	Broadcast(sessionID, eventType string, payload any)
}

// NopBroadcaster discards every event. Used when the API layer isn't wired
// (e.g. in tests of the session package alone).
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(string, string, any) {}

// ExternalPressureEvent is the payload for external_market_pressure.
type ExternalPressureEvent struct {
	CurrentTPS        float64             `json:"current_tps"`
	DominantTraderType string             `json:"dominant_trader_type"`
	QueueDepth        int                 `json:"queue_depth"`
}

// StatusEvent is the payload for simulation_status.
type StatusEvent struct {
	State  string `json:"state"`
	Paused bool   `json:"paused"`
}

// CascadeEvent is the payload for liquidation_cascade_triggered.
type CascadeEvent struct {
	Generated        int     `json:"generated"`
	EstimatedImpact  float64 `json:"estimated_impact"`
	CascadeSize      int     `json:"cascade_size"`
}
