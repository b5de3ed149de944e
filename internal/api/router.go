// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package api exposes the monitoring pipeline over HTTP: decision
// ingest, session and alert reads, the runtime detection toggle, and
// the live alert feed.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argus-sec/argus/internal/audit"
	"github.com/argus-sec/argus/internal/config"
	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/monitor"
	"github.com/argus-sec/argus/internal/ws"
)

// Server bundles the router's dependencies.
type Server struct {
	monitor *monitor.Monitor
	records *audit.Store
	flags   *config.FeatureFlags
	feed    *ws.Hub
}

// NewServer creates the API server. Records and feed may be nil, in
// which case their routes respond 404.
func NewServer(m *monitor.Monitor, records *audit.Store, flags *config.FeatureFlags, feed *ws.Hub) *Server {
	return &Server{
		monitor: m,
		records: records,
		flags:   flags,
		feed:    feed,
	}
}

// Router builds the chi router with the standard middleware stack.
func (s *Server) Router(cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/decisions", s.handleTrackDecision)
		r.Get("/sessions/{sessionID}", s.handleGetSession)
		r.Get("/alerts/recent", s.handleRecentAlerts)
		r.Get("/detection/enabled", s.handleGetDetection)
		r.Put("/detection/enabled", s.handleSetDetection)
	})

	if s.feed != nil {
		r.Get("/ws/alerts", s.feed.ServeHTTP)
	}
	return r
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.Status()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
