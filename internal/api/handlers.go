// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/monitor"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleTrackDecision ingests one security decision, runs detection,
// and returns the verdict. Alert delivery continues asynchronously.
func (s *Server) handleTrackDecision(w http.ResponseWriter, r *http.Request) {
	var req monitor.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RemoteAddr == "" {
		req.RemoteAddr = r.RemoteAddr
	}

	out := s.monitor.TrackAndDetect(r.Context(), req)
	if s.feed != nil && out.Alert != nil && !out.Alert.Suppressed {
		s.feed.BroadcastAlert(out.Alert)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	snap, ok := s.monitor.Session(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	if s.records == nil {
		writeError(w, http.StatusNotFound, "audit store not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	records, err := s.records.Recent(r.Context(), limit)
	if err != nil {
		logging.Err(err).Msg("failed to list recent alerts")
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": records, "count": len(records)})
}

type detectionState struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleGetDetection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, detectionState{Enabled: s.flags.AnomalyDetectionEnabled()})
}

// handleSetDetection flips the runtime detection switch. When off the
// whole pipeline quiesces: nothing is tracked, detected, or alerted.
func (s *Server) handleSetDetection(w http.ResponseWriter, r *http.Request) {
	var req detectionState
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.flags.SetAnomalyDetection(req.Enabled)
	logging.Info().Bool("enabled", req.Enabled).Msg("anomaly detection toggled")
	writeJSON(w, http.StatusOK, detectionState{Enabled: s.flags.AnomalyDetectionEnabled()})
}
