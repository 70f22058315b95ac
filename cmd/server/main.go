package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/stumpline/cricket-live/internal/broadcast"
	"github.com/stumpline/cricket-live/internal/config"
	"github.com/stumpline/cricket-live/internal/core/dls"
	"github.com/stumpline/cricket-live/internal/core/match"
	"github.com/stumpline/cricket-live/internal/events"
	"github.com/stumpline/cricket-live/internal/server/ingest"
	"github.com/stumpline/cricket-live/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting scoring server")

	bus := events.NewBus()
	registry := match.NewRegistry()

	// ── Event log ──────────────────────────────────────────────
	log, err := ingest.OpenLog(cfg.EventLogPath)
	if err != nil {
		telemetry.Errorf("event log: %v", err)
		os.Exit(1)
	}
	defer log.Close()

	// ── Resource table ─────────────────────────────────────────
	table := dls.Standard()
	if cfg.ResourceTablePath != "" {
		table, err = dls.LoadTable(cfg.ResourceTablePath)
		if err != nil {
			telemetry.Errorf("resource table %s: %v", cfg.ResourceTablePath, err)
			os.Exit(1)
		}
		telemetry.Infof("Loaded resource table override from %s", cfg.ResourceTablePath)
	}

	// ── Ingestion API + broadcast hub ──────────────────────────
	handler := ingest.NewHandler(registry, log, bus, rate.Limit(cfg.IngestRate), cfg.IngestBurst)
	handler.SetResources(table, cfg.GFifty)

	hub := broadcast.NewServer(bus, log)

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.HandleFunc("/ws", hub.HandleWS)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections are long-lived
	}

	go func() {
		telemetry.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("http server: %v", err)
			os.Exit(1)
		}
	}()

	// ── Shutdown ───────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down scoring server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(ctx)

	for _, mc := range registry.All() {
		mc.Close()
	}

	telemetry.Infof("Server shutdown complete  ingested=%d  duplicates=%d  rejections=%d  viewers_dropped=%d",
		telemetry.Metrics.BallsIngested.Value(),
		telemetry.Metrics.Duplicates.Value(),
		telemetry.Metrics.Rejections.Value(),
		telemetry.Metrics.BroadcastDrops.Value(),
	)
}
