// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/anomaly"
	"github.com/argus-sec/argus/internal/delivery"
	"github.com/argus-sec/argus/internal/session"
)

// captureSink records enqueued alerts and completes delivery
// synchronously with one successful result.
type captureSink struct {
	alerts []*alert.Alert
}

func (s *captureSink) Enqueue(a *alert.Alert, done func([]delivery.Result)) {
	s.alerts = append(s.alerts, a)
	if done != nil {
		done([]delivery.Result{{
			DestinationName: "ops-webhook",
			ChannelType:     delivery.ChannelWebhook,
			Success:         true,
		}})
	}
}

type captureRecorder struct {
	created   int
	delivered map[string][]string
}

func (r *captureRecorder) CreateSecurityRecord(context.Context, string, alert.Severity, string, any) (string, error) {
	r.created++
	return "rec-1", nil
}

func (r *captureRecorder) MarkRecordDelivered(_ context.Context, recordID string, destinations []string) error {
	if r.delivered == nil {
		r.delivered = make(map[string][]string)
	}
	r.delivered[recordID] = destinations
	return nil
}

func newTestMonitor(rec alert.Recorder, sink AlertSink) *Monitor {
	// A one-minute window keeps every test call inside the rate window
	// without clock juggling.
	tracker := session.NewTracker(session.Config{WindowSize: time.Minute}, nil)
	detector := anomaly.NewDetector(anomaly.Config{}, tracker, nil)
	alerts := alert.NewService(alert.Config{}, rec, nil)
	return New(tracker, detector, alerts, sink)
}

func TestMonitor_BenignTrafficProducesNoAlert(t *testing.T) {
	sink := &captureSink{}
	m := newTestMonitor(nil, sink)

	for i := 0; i < 5; i++ {
		out := m.TrackAndDetect(context.Background(), Request{
			SessionID:    "s1",
			UserID:       "u1",
			AnomalyScore: 0.1,
			Decision:     session.DecisionAllow,
		})
		if out.Verdict.IsAnomalous || out.Alert != nil {
			t.Fatalf("outcome = %+v, want benign", out)
		}
	}
	if len(sink.alerts) != 0 {
		t.Errorf("sink received %d alerts, want 0", len(sink.alerts))
	}
}

func TestMonitor_BlockedBurstEscalatesToSessionBlock(t *testing.T) {
	rec := &captureRecorder{}
	sink := &captureSink{}
	m := newTestMonitor(rec, sink)

	var last Outcome
	for i := 0; i < 11; i++ {
		last = m.TrackAndDetect(context.Background(), Request{
			SessionID:    "s1",
			UserID:       "u1",
			AnomalyScore: 0.7,
			Decision:     session.DecisionBlock,
			Endpoint:     "/api/chat",
		})
	}

	v := last.Verdict
	if !v.IsAnomalous {
		t.Fatal("IsAnomalous = false after 11 blocks in one minute")
	}
	types := make(map[anomaly.PatternType]bool)
	for _, p := range v.Patterns {
		types[p.Type] = true
	}
	if !types[anomaly.PatternRapidRequests] || !types[anomaly.PatternSequentialInjection] {
		t.Errorf("patterns = %+v, want rapid_requests and sequential_injection", v.Patterns)
	}
	if v.Recommendation != anomaly.RecommendBlockSession {
		t.Errorf("Recommendation = %s, want %s", v.Recommendation, anomaly.RecommendBlockSession)
	}

	if len(sink.alerts) == 0 {
		t.Fatal("no alerts reached the sink")
	}
	first := sink.alerts[0]
	if first.Suppressed {
		t.Error("first delivered alert marked suppressed")
	}
	if first.Context.Endpoint != "/api/chat" {
		t.Errorf("Context.Endpoint = %q", first.Context.Endpoint)
	}
	if first.Context.BlockedCount == 0 {
		t.Error("Context.BlockedCount = 0")
	}

	if rec.created != len(sink.alerts) {
		t.Errorf("records created = %d, delivered alerts = %d", rec.created, len(sink.alerts))
	}
	if got := rec.delivered["rec-1"]; len(got) != 1 || got[0] != "ops-webhook" {
		t.Errorf("delivered = %v, want [ops-webhook]", got)
	}
}

func TestMonitor_RepeatedVerdictsAreSuppressed(t *testing.T) {
	sink := &captureSink{}
	m := newTestMonitor(nil, sink)

	// Runs of blocks keep the sequential pattern firing; once
	// confidence plateaus the repeats must stop reaching the sink.
	for i := 0; i < 10; i++ {
		m.TrackAndDetect(context.Background(), Request{
			SessionID:    "s1",
			UserID:       "u1",
			AnomalyScore: 0.7,
			Decision:     session.DecisionBlock,
		})
	}

	if len(sink.alerts) >= 8 {
		t.Errorf("sink received %d alerts from 8 anomalous verdicts, want suppression", len(sink.alerts))
	}
	for _, a := range sink.alerts {
		if a.Suppressed {
			t.Error("suppressed alert reached the sink")
		}
	}
}

func TestMonitor_SessionSnapshot(t *testing.T) {
	m := newTestMonitor(nil, nil)

	m.TrackAndDetect(context.Background(), Request{
		SessionID:    "s1",
		UserID:       "u1",
		AnomalyScore: 0.3,
		Decision:     session.DecisionFlag,
	})

	snap, ok := m.Session("s1")
	if !ok {
		t.Fatal("session not found")
	}
	if snap.FlaggedCount != 1 || snap.RequestCount != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, ok := m.Session("missing"); ok {
		t.Error("unknown session reported present")
	}
}
