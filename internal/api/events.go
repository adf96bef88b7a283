package api

import "time"

// CascadeResponse mirrors session.CascadeResult for the HTTP response body,
// kept as a distinct type so the API's wire shape doesn't change silently
// if the controller's internal result type grows new fields.
type CascadeResponse struct {
	Generated       int     `json:"generated"`
	EstimatedImpact float64 `json:"estimated_impact"`
	CascadeSize     int     `json:"cascade_size"`
}

// hubBroadcaster adapts a Hub into session.Broadcaster: every lifecycle and
// tick event the controller emits is wrapped in a StreamEvent tagged with its
// session ID and fanned out to every connected client; the hub does not
// filter by session.
type hubBroadcaster struct {
	hub *Hub
}

// NewBroadcaster wraps hub as a session.Broadcaster. Build the Hub before
// the session.Controller so the controller can be constructed with this
// broadcaster from the start — every lifecycle event, including the very
// first one, then has somewhere to go.
func NewBroadcaster(hub *Hub) *hubBroadcaster {
	return &hubBroadcaster{hub: hub}
}

// Broadcast implements session.Broadcaster.
func (b *hubBroadcaster) Broadcast(sessionID, eventType string, payload any) {
	b.hub.BroadcastEvent(StreamEvent{
		Type:      eventType,
		Timestamp: time.Now(),
		SessionID: sessionID,
		Data:      payload,
	})
}
