package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"simengine/internal/config"
	"simengine/internal/session"
	"simengine/internal/simerr"
	"simengine/pkg/simtypes"
)

// Handlers holds all HTTP handler dependencies. One Controller instance
// enforces the single-active-session policy across every handler.
type Handlers struct {
	ctrl   *session.Controller
	cfg    *config.Config
	hub    *Hub
	logger *slog.Logger
}

// NewHandlers creates a new handlers instance.
func NewHandlers(ctrl *session.Controller, cfg *config.Config, hub *Hub, logger *slog.Logger) *Handlers {
	return &Handlers{
		ctrl:   ctrl,
		cfg:    cfg,
		hub:    hub,
		logger: logger.With("component", "api-handlers"),
	}
}

// HandleHealth returns a simple health check response.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCreateSession implements createSession.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
			// An empty or absent body is a valid "use the defaults" request.
			req = CreateSessionRequest{}
		}
	}

	s, err := h.ctrl.CreateSession(req.ToParams())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s.Snapshot())
}

// HandleGetSession implements getSession(id).
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s, err := h.ctrl.GetSession(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Snapshot())
}

// HandleListSessions implements listSessions.
func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildListSnapshot(h.ctrl.ListSessions()))
}

// HandleSetSpeed implements setSpeed(id, n).
func (h *Handlers) HandleSetSpeed(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SetSpeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, err)
		return
	}

	accepted, err := h.ctrl.SetSpeed(id, req.Speed)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SetSpeedRequest{Speed: accepted})
}

// HandleStartSession implements startSession(id).
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ctrl.StartSession)
}

// HandlePauseSession implements pauseSession(id).
func (h *Handlers) HandlePauseSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ctrl.PauseSession)
}

// HandleResumeSession implements resumeSession(id).
func (h *Handlers) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ctrl.ResumeSession)
}

// HandleResetSession implements resetSession(id).
func (h *Handlers) HandleResetSession(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.ctrl.ResetSession)
}

func (h *Handlers) transition(w http.ResponseWriter, r *http.Request, op func(string) (simtypes.SessionState, error)) {
	id := r.PathValue("id")
	state, err := op(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": string(state)})
}

// HandleDeleteSession implements deleteSession(id).
func (h *Handlers) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.ctrl.DeleteSession(id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetThroughputMode implements setThroughputMode(id, mode).
func (h *Handlers) HandleSetThroughputMode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req SetThroughputModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, err)
		return
	}

	previous, err := h.ctrl.SetThroughputMode(id, simtypes.ThroughputMode(req.Mode))
	if err != nil {
		h.writeError(w, err)
		return
	}

	s, err := h.ctrl.GetSession(id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SetThroughputModeResponse{
		PreviousMode: string(previous),
		Metrics:      s.Snapshot().Metrics,
	})
}

// HandleTriggerLiquidationCascade implements triggerLiquidationCascade(id).
func (h *Handlers) HandleTriggerLiquidationCascade(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	result, err := h.ctrl.TriggerLiquidationCascade(id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CascadeResponse{
		Generated:       result.Generated,
		EstimatedImpact: result.EstimatedImpact,
		CascadeSize:     result.CascadeSize,
	})
}

// HandleWebSocket upgrades the connection and registers a new WebSocket
// client with the hub. The client receives the events of every session,
// not only those of the session named in the request.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return isOriginAllowed(req.Header.Get("Origin"), h.cfg.API, req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(h.hub, conn)

	id := r.PathValue("id")
	s, err := h.ctrl.GetSession(id)
	if err != nil {
		return
	}

	evt := StreamEvent{Type: "price_update", SessionID: id, Data: s.Snapshot()}
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal initial snapshot", "error", err)
		return
	}

	select {
	case client.send <- data:
	default:
		h.logger.Warn("failed to send initial snapshot to client")
	}
}

// writeError maps a simerr sentinel to the matching HTTP status.
func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simerr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simerr.ErrInvalidState), errors.Is(err, simerr.ErrUnknownMode), errors.Is(err, simerr.ErrWrongMode):
		status = http.StatusConflict
	case errors.Is(err, simerr.ErrConcurrencyViolation):
		status = http.StatusTooManyRequests
	case errors.Is(err, simerr.ErrSingleSession):
		status = http.StatusConflict
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func isOriginAllowed(origin string, cfg config.APIConfig, reqHost string) bool {
	if origin == "" {
		// Non-browser clients often omit Origin; keep this path functional.
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	normalized := normalizeOrigin(originURL.Scheme, originURL.Host)
	if normalized == "" {
		return false
	}

	if len(cfg.AllowedOrigins) > 0 {
		for _, allowed := range cfg.AllowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == normalizeOrigin(u.Scheme, u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	reqHostname := normalizeHost(reqHost)
	return reqHostname != "" && host == reqHostname
}

func normalizeOrigin(scheme, host string) string {
	if scheme == "" || host == "" {
		return ""
	}
	return strings.ToLower(scheme) + "://" + strings.ToLower(host)
}

func normalizeHost(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(hostport)
}
