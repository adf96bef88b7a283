package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"simengine/internal/config"
	"simengine/internal/session"
)

// Server runs the HTTP/WebSocket session API.
type Server struct {
	cfg      config.APIConfig
	ctrl     *session.Controller
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer wires the session API around an already-constructed Controller
// and the Hub it was given as its Broadcaster (see NewBroadcaster) — the
// hub has to exist before the controller so the controller's very first
// lifecycle event has somewhere to go.
func NewServer(cfg config.APIConfig, ctrl *session.Controller, hub *Hub, fullCfg *config.Config, logger *slog.Logger) *Server {
	handlers := NewHandlers(ctrl, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.HandleFunc("POST /api/sessions", handlers.HandleCreateSession)
	mux.HandleFunc("GET /api/sessions", handlers.HandleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", handlers.HandleGetSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", handlers.HandleDeleteSession)
	mux.HandleFunc("POST /api/sessions/{id}/speed", handlers.HandleSetSpeed)
	mux.HandleFunc("POST /api/sessions/{id}/start", handlers.HandleStartSession)
	mux.HandleFunc("POST /api/sessions/{id}/pause", handlers.HandlePauseSession)
	mux.HandleFunc("POST /api/sessions/{id}/resume", handlers.HandleResumeSession)
	mux.HandleFunc("POST /api/sessions/{id}/reset", handlers.HandleResetSession)
	mux.HandleFunc("POST /api/sessions/{id}/throughput_mode", handlers.HandleSetThroughputMode)
	mux.HandleFunc("POST /api/sessions/{id}/liquidation_cascade", handlers.HandleTriggerLiquidationCascade)
	mux.HandleFunc("GET /api/sessions/{id}/stream", handlers.HandleWebSocket)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start starts the WebSocket hub and the HTTP server.
func (s *Server) Start() error {
	go s.hub.Run()

	s.logger.Info("session api starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping session api")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
