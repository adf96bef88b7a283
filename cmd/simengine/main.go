// Simengine — a real-time market simulation engine: synthetic order flow,
// matching, and price discovery served over a session-oriented HTTP/WebSocket
// API.
//
// Architecture:
//
//	main.go                    — entry point: loads config, wires the hub/controller/server, waits for SIGINT/SIGTERM
//	internal/session/controller.go — session lifecycle: create/start/pause/resume/reset/delete, single-active-session policy
//	internal/session/tick.go       — per-session tick loop orchestrator
//	internal/orderbook/book.go      — synthetic limit order book + matching
//	internal/candle/aggregator.go   — OHLCV candle aggregation from executed trades
//	internal/trader/                — synthetic trader population, archetype mix, dedup
//	internal/external/              — external order generator, pacing by throughput mode
//	internal/traderdata/            — leaderboard cache with synthetic fallback
//	internal/api/                   — HTTP handlers + WebSocket hub for the session API
//	internal/metrics/                — Prometheus gauges/counters for engine health
//
// How it works:
//
//	Each session runs its own tick loop, advancing a simulated clock and
//	feeding the order book with externally-generated and trader-generated
//	orders. Matched trades flow into the candle aggregator and out to any
//	connected WebSocket clients via the session's broadcaster.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simengine/internal/api"
	"simengine/internal/config"
	"simengine/internal/session"
	"simengine/internal/traderdata"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("SIM_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	traderCache, err := traderdata.NewCache(
		cfg.TraderData.CacheDir,
		cfg.TraderData.CacheTTL,
		cfg.TraderData.SyntheticCount,
		nil, // no live leaderboard feed wired; cache falls back to synthetic population
	)
	if err != nil {
		logger.Error("failed to create trader-data cache", "error", err)
		os.Exit(1)
	}

	// The Hub must exist before the Controller: the controller's very first
	// lifecycle event needs somewhere to go.
	hub := api.NewHub(logger)
	broadcaster := api.NewBroadcaster(hub)

	ctrl := session.NewController(cfg, logger, traderCache, broadcaster)

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API, ctrl, hub, cfg, logger)
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Error("session api failed", "error", err)
			}
		}()
		logger.Info("session api started", "url", fmt.Sprintf("http://localhost:%d", cfg.API.Port))
	}

	var metricsServer *http.Server
	if cfg.API.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: fmt.Sprintf(":%d", cfg.API.MetricsPort), Handler: mux}
		go func() {
			logger.Info("metrics server started", "port", cfg.API.MetricsPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	logger.Info("simengine started",
		"default_mode", cfg.Throughput.DefaultMode,
		"depth_levels", cfg.Engine.DepthLevels,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error("failed to stop session api", "error", err)
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(context.Background()); err != nil {
			logger.Error("failed to stop metrics server", "error", err)
		}
	}

	ctrl.Shutdown()
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
