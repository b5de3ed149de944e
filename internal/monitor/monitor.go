// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package monitor wires the pipeline: track a decision, detect
// anomalies, generate an alert, and hand it off for delivery.
package monitor

import (
	"context"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/anomaly"
	"github.com/argus-sec/argus/internal/delivery"
	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/session"
)

// Request is one security decision reported by the upstream
// inspection layer.
type Request struct {
	SessionID       string           `json:"session_id" validate:"required"`
	UserID          string           `json:"user_id" validate:"required"`
	AnomalyScore    float64          `json:"anomaly_score" validate:"gte=0,lte=1"`
	Decision        session.Decision `json:"decision" validate:"required,oneof=allow block flag escalate"`
	PatternCategory string           `json:"pattern_category,omitempty"`
	Endpoint        string           `json:"endpoint,omitempty"`
	RemoteAddr      string           `json:"remote_addr,omitempty"`
}

// Outcome is what one tracked decision produced.
type Outcome struct {
	Verdict anomaly.Verdict `json:"verdict"`
	Alert   *alert.Alert    `json:"alert,omitempty"`
}

// AlertSink queues alerts for asynchronous delivery. The dispatcher
// satisfies it.
type AlertSink interface {
	Enqueue(a *alert.Alert, done func([]delivery.Result))
}

// Monitor owns the detection pipeline. The composition root
// constructs one per process.
type Monitor struct {
	tracker  *session.Tracker
	detector *anomaly.Detector
	alerts   *alert.Service
	sink     AlertSink
}

// New creates a monitor over explicitly constructed components. Sink
// may be nil, in which case alerts are generated but not delivered.
func New(tracker *session.Tracker, detector *anomaly.Detector, alerts *alert.Service, sink AlertSink) *Monitor {
	return &Monitor{
		tracker:  tracker,
		detector: detector,
		alerts:   alerts,
		sink:     sink,
	}
}

// TrackAndDetect records one decision, runs detection, and, when the
// verdict is anomalous and not suppressed, queues the alert for
// delivery. The delivery itself is asynchronous; the returned outcome
// reflects generation only.
func (m *Monitor) TrackAndDetect(ctx context.Context, req Request) Outcome {
	m.tracker.TrackRequest(req.SessionID, req.UserID, req.AnomalyScore, req.Decision, req.PatternCategory)
	metrics.DecisionsTracked.WithLabelValues(string(req.Decision)).Inc()
	metrics.ActiveSessions.Set(float64(m.tracker.Len()))

	verdict := m.detector.Detect(req.SessionID)
	metrics.Verdicts.WithLabelValues(string(verdict.Recommendation)).Inc()
	for _, p := range verdict.Patterns {
		metrics.PatternsDetected.WithLabelValues(string(p.Type)).Inc()
	}

	out := Outcome{Verdict: verdict}
	if !verdict.IsAnomalous {
		return out
	}

	actx := alert.Context{
		Endpoint:   req.Endpoint,
		RemoteAddr: req.RemoteAddr,
	}
	if snap, ok := m.tracker.Snapshot(req.SessionID); ok {
		actx.RequestCount = snap.RequestCount
		actx.BlockedCount = snap.BlockedCount
	}

	a := m.alerts.Generate(ctx, verdict, req.UserID, actx)
	if a == nil {
		return out
	}
	out.Alert = a

	if a.Suppressed {
		metrics.AlertsSuppressed.Inc()
		return out
	}
	metrics.AlertsGenerated.WithLabelValues(string(a.Severity)).Inc()

	if m.sink != nil {
		m.sink.Enqueue(a, func(results []delivery.Result) {
			var delivered []string
			for _, r := range results {
				if r.Success {
					delivered = append(delivered, r.DestinationName)
				}
			}
			m.alerts.MarkSent(context.Background(), a, delivered)
		})
	}
	return out
}

// Session exposes one session's rolling state for the read API.
func (m *Monitor) Session(sessionID string) (session.Snapshot, bool) {
	return m.tracker.Snapshot(sessionID)
}
