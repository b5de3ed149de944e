// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/argus-sec/argus/internal/anomaly"
	"github.com/argus-sec/argus/internal/logging"
)

// Service generates alerts from anomalous verdicts. A per-session
// buffer of recent alerts, bounded by the suppression window, is used
// only for duplicate detection; persisted records live in the Recorder.
type Service struct {
	cfg      Config
	recorder Recorder
	gate     Gate

	mu     sync.Mutex
	recent map[string][]*Alert

	// now is replaceable in tests.
	now func() time.Time
}

// NewService creates an alert service. Recorder may be nil, in which
// case alerts are generated but never persisted. A nil gate means
// always enabled.
func NewService(cfg Config, recorder Recorder, gate Gate) *Service {
	def := DefaultConfig()
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = def.SuppressionWindow
	}
	if cfg.ConfidenceDelta <= 0 {
		cfg.ConfidenceDelta = def.ConfidenceDelta
	}
	return &Service{
		cfg:      cfg,
		recorder: recorder,
		gate:     gate,
		recent:   make(map[string][]*Alert),
		now:      time.Now,
	}
}

func (s *Service) enabled() bool {
	return s.gate == nil || s.gate.AnomalyDetectionEnabled()
}

// Generate creates an alert for an anomalous verdict. Returns nil for
// non-anomalous verdicts or when detection is disabled.
//
// A near-duplicate of a recent alert for the same session is not
// returned as nil: it comes back with Suppressed set so callers can
// observe and count the suppression, but it carries no side effects.
// A suppressed alert is never persisted, never buffered for future
// dedup, and must not be handed to delivery.
func (s *Service) Generate(ctx context.Context, verdict anomaly.Verdict, userID string, actx Context) *Alert {
	if !s.enabled() || !verdict.IsAnomalous {
		return nil
	}

	now := s.now()
	a := &Alert{
		ID:                uuid.NewString(),
		Timestamp:         now,
		Severity:          classifySeverity(verdict),
		UserID:            userID,
		SessionID:         verdict.SessionID,
		Patterns:          verdict.Patterns,
		OverallConfidence: verdict.OverallConfidence,
		Recommendation:    verdict.Recommendation,
		Context:           actx,
	}

	if s.isDuplicate(a, now) {
		a.Suppressed = true
		logging.Debug().
			Str("session_id", a.SessionID).
			Float64("confidence", a.OverallConfidence).
			Msg("near-duplicate alert suppressed")
		return a
	}
	s.remember(a, now)

	if s.recorder != nil {
		recordID, err := s.recorder.CreateSecurityRecord(ctx, "anomaly_alert", a.Severity, a.UserID, a)
		if err != nil {
			// Persistence is best effort; the alert still flows to delivery.
			logging.Warn().Err(err).Str("alert_id", a.ID).Msg("security record not persisted")
		} else {
			a.RecordID = recordID
		}
	}

	logging.Info().
		Str("alert_id", a.ID).
		Str("session_id", a.SessionID).
		Str("severity", string(a.Severity)).
		Float64("confidence", a.OverallConfidence).
		Str("recommendation", string(a.Recommendation)).
		Msg("alert generated")
	return a
}

// MarkSent records which destinations an alert reached. Failure to
// update the external record is logged and swallowed.
func (s *Service) MarkSent(ctx context.Context, a *Alert, destinations []string) {
	if s.recorder == nil || a.RecordID == "" || len(destinations) == 0 {
		return
	}
	if err := s.recorder.MarkRecordDelivered(ctx, a.RecordID, destinations); err != nil {
		logging.Warn().Err(err).Str("alert_id", a.ID).Msg("delivery status not recorded")
	}
}

// isDuplicate reports whether the alert repeats a recent one for the
// same session: a shared pattern type with the maximum pattern
// confidence not materially above the recent maximum. Pattern
// confidences are compared rather than overall confidence, which the
// corroboration boost can inflate independently of any single signal.
func (s *Service) isDuplicate(a *Alert, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.pruneLocked(a.SessionID, now)
	types := make(map[anomaly.PatternType]struct{}, len(a.Patterns))
	for _, p := range a.Patterns {
		types[p.Type] = struct{}{}
	}

	maxConf, shared := 0.0, false
	for _, prev := range buf {
		for _, p := range prev.Patterns {
			if _, ok := types[p.Type]; ok {
				shared = true
				if c := maxPatternConfidence(prev.Patterns); c > maxConf {
					maxConf = c
				}
				break
			}
		}
	}
	if !shared {
		return false
	}
	return maxPatternConfidence(a.Patterns)-maxConf < s.cfg.ConfidenceDelta
}

func maxPatternConfidence(patterns []anomaly.Pattern) float64 {
	var max float64
	for _, p := range patterns {
		if p.Confidence > max {
			max = p.Confidence
		}
	}
	return max
}

func (s *Service) remember(a *Alert, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent[a.SessionID] = append(s.pruneLocked(a.SessionID, now), a)
}

// pruneLocked drops buffered alerts that aged out of the suppression
// window. Must be called with s.mu held.
func (s *Service) pruneLocked(sessionID string, now time.Time) []*Alert {
	buf := s.recent[sessionID]
	cutoff := now.Add(-s.cfg.SuppressionWindow)
	kept := buf[:0]
	for _, a := range buf {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(s.recent, sessionID)
		return nil
	}
	s.recent[sessionID] = kept
	return kept
}

// Reset discards all per-session suppression state.
func (s *Service) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = make(map[string][]*Alert)
}

// classifySeverity ranks a verdict. Checked in order: a very high
// confidence or a block recommendation is critical; a confident
// sequential-injection run or high confidence is high; corroborating
// patterns or moderate confidence is medium; everything else low.
func classifySeverity(v anomaly.Verdict) Severity {
	if v.OverallConfidence >= 0.9 || v.Recommendation == anomaly.RecommendBlockSession {
		return SeverityCritical
	}
	for _, p := range v.Patterns {
		if p.Type == anomaly.PatternSequentialInjection && p.Confidence > 0.7 {
			return SeverityHigh
		}
	}
	if v.OverallConfidence >= 0.7 {
		return SeverityHigh
	}
	if len(v.Patterns) >= 2 || v.OverallConfidence >= 0.5 {
		return SeverityMedium
	}
	return SeverityLow
}
