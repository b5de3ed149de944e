// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package main is the entry point for the Argus server.
//
// Argus watches the stream of security decisions an upstream
// inspection layer produces, tracks rolling per-session state, runs
// anomaly heuristics over it, and delivers severity-classified alerts
// to webhooks and email with retry.
//
// The process initializes in order:
//
//  1. Configuration: layered Koanf v2 loading (defaults, YAML file,
//     ARGUS_-prefixed environment variables)
//  2. Audit store: BadgerDB-backed security record persistence
//  3. Pipeline: session tracker, anomaly detector, alert service
//  4. Delivery: the dispatcher with its configured destinations
//  5. WebSocket hub: live alert feed for connected clients
//  6. HTTP server: decision ingest and read API
//
// All long-running components run under a Suture supervisor tree and
// restart independently on failure. SIGINT and SIGTERM trigger a
// graceful shutdown bounded by server.shutdown_timeout.
//
// Example:
//
//	export ARGUS_SERVER__PORT=8089
//	export ARGUS_AUDIT_PATH=/data/argus/audit
//	./argus
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/anomaly"
	"github.com/argus-sec/argus/internal/api"
	"github.com/argus-sec/argus/internal/audit"
	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/delivery"
	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/monitor"
	"github.com/argus-sec/argus/internal/session"
	"github.com/argus-sec/argus/internal/supervisor"
	"github.com/argus-sec/argus/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The default logger is usable before Init.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Caller: cfg.Log.Caller,
	})

	logging.Info().
		Str("listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)).
		Bool("detection_enabled", cfg.Detection.Enabled).
		Int("destinations", len(cfg.Delivery.Destinations)).
		Str("audit_path", cfg.AuditPath).
		Msg("Starting Argus")

	records, db, err := audit.Open(cfg.AuditPath, cfg.Audit)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open audit store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing audit store")
		}
	}()

	// Pipeline components share the feature-flag gate so the runtime
	// detection toggle quiesces all of them at once.
	flags := config.NewFeatureFlags(cfg.Detection)
	tracker := session.NewTracker(cfg.Session, flags)
	detector := anomaly.NewDetector(cfg.Anomaly, tracker, flags)
	alerts := alert.NewService(cfg.Alert, records, flags)

	dispatcher := delivery.NewDispatcher(cfg.Delivery)
	for _, dest := range cfg.Delivery.Destinations {
		logging.Info().
			Str("destination", dest.Name).
			Str("channel", string(dest.Type)).
			Bool("enabled", dest.Enabled).
			Msg("Alert destination configured")
	}

	mon := monitor.New(tracker, detector, alerts, dispatcher)
	hub := ws.NewHub()

	// Hot-reload the runtime-adjustable surface when the config file
	// changes: the detection switch, log level, and destination set.
	stopWatch, err := config.Watch(func(next *config.Config) {
		flags.SetAnomalyDetection(next.Detection.Enabled)
		logging.SetLevelString(next.Log.Level)
		dispatcher.UpdateDestinations(next.Delivery.Destinations)
	})
	if err != nil {
		logging.Warn().Err(err).Msg("Config hot reload unavailable")
	} else {
		defer stopWatch()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(mon, records, flags, hub).Router(cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddStorageService(monitor.NewSweeper(tracker, cfg.SweepInterval))
	tree.AddAlertingService(dispatcher)
	tree.AddAlertingService(hub)
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, stopping supervisor tree")
	case err := <-errCh:
		if err != nil {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain the terminal error after cancellation.
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}

	if unstopped, err := tree.UnstoppedServiceReport(); err == nil && len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within timeout")
		}
	}

	logging.Info().Msg("Argus stopped")
}
