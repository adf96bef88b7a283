// Package api exposes the session lifecycle operations over HTTP and
// streams per-session events over WebSocket, the way the teacher's
// dashboard served a read-only market snapshot and fill/position/kill
// events to a browser.
package api

import (
	"time"

	"simengine/internal/session"
	"simengine/pkg/simtypes"
)

// StreamEvent is the wrapper for every message sent down a session's
// WebSocket: type names the payload per spec.md's streaming surface
// (price_update, processed_trade, external_market_pressure, scenario_*,
// simulation_reset, liquidation_cascade_triggered, simulation_status).
type StreamEvent struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	SessionID string      `json:"session_id"`
	Data      interface{} `json:"data"`
}

// CreateSessionRequest is the createSession request body.
type CreateSessionRequest struct {
	CustomPrice       float64 `json:"custom_price,omitempty"`
	DurationMinutes   int     `json:"duration_minutes,omitempty"`
	CompressionFactor float64 `json:"compression_factor,omitempty"`
	VolatilityMult    float64 `json:"volatility_mult,omitempty"`
	InitialLiquidity  float64 `json:"initial_liquidity,omitempty"`
}

// ToParams converts the wire request into session.CreateParams.
func (r CreateSessionRequest) ToParams() session.CreateParams {
	return session.CreateParams{
		CustomPrice:       r.CustomPrice,
		DurationMinutes:   r.DurationMinutes,
		CompressionFactor: r.CompressionFactor,
		VolatilityMult:    r.VolatilityMult,
		InitialLiquidity:  r.InitialLiquidity,
	}
}

// SetSpeedRequest is the setSpeed request body.
type SetSpeedRequest struct {
	Speed float64 `json:"speed"`
}

// SetThroughputModeRequest is the setThroughputMode request body.
type SetThroughputModeRequest struct {
	Mode string `json:"mode"`
}

// SetThroughputModeResponse reports the previous mode plus the session's
// live metrics at the moment of the switch.
type SetThroughputModeResponse struct {
	PreviousMode string                     `json:"previous_mode"`
	Metrics      simtypes.ThroughputMetrics `json:"metrics"`
}

// ErrorResponse is the JSON body for any non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
