// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package anomaly derives behavioral verdicts from session state. The
// detector runs four independent heuristics and aggregates the ones
// that trigger into a single confidence and recommendation.
package anomaly

import (
	"github.com/argus-sec/argus/internal/session"
)

// PatternType names one of the four detection heuristics.
type PatternType string

const (
	PatternRapidRequests       PatternType = "rapid_requests"
	PatternSequentialInjection PatternType = "sequential_injection"
	PatternProbingBehavior     PatternType = "probing_behavior"
	PatternGradualEscalation   PatternType = "gradual_escalation"
)

// Recommendation is the action the detector suggests for a session.
type Recommendation string

const (
	RecommendMonitor      Recommendation = "monitor"
	RecommendAlert        Recommendation = "alert"
	RecommendBlockSession Recommendation = "block_session"
)

// Pattern is one triggered heuristic with its confidence and the raw
// measurements that produced it.
type Pattern struct {
	Type       PatternType    `json:"type"`
	Confidence float64        `json:"confidence"`
	Details    map[string]any `json:"details,omitempty"`
}

// Verdict is the detector's full output for one session. It is derived
// on every call and never stored.
type Verdict struct {
	SessionID         string         `json:"session_id"`
	IsAnomalous       bool           `json:"is_anomalous"`
	OverallConfidence float64        `json:"overall_confidence"`
	Patterns          []Pattern      `json:"patterns"`
	Recommendation    Recommendation `json:"recommendation"`
}

// SessionReader is the view of session state the detector needs. The
// session tracker satisfies it.
type SessionReader interface {
	RequestRate(sessionID string) float64
	RecentDecisions(sessionID string, n int) []session.Decision
	UniquePatternCategories(sessionID string) []string
	RecentAnomalyScores(sessionID string) []float64
}

// Gate reports whether anomaly detection is enabled.
type Gate interface {
	AnomalyDetectionEnabled() bool
}

// Config tunes the four heuristics, the aggregation weights, and the
// recommendation thresholds.
type Config struct {
	// RateThreshold triggers rapid_requests above this many requests
	// per minute.
	RateThreshold float64 `koanf:"rate_threshold" validate:"gte=0"`

	// SequentialRun triggers sequential_injection when the longest run
	// of consecutive blocks reaches it.
	SequentialRun int `koanf:"sequential_run" validate:"gte=1"`

	// SequentialLookback is how many recent decisions the run check
	// scans.
	SequentialLookback int `koanf:"sequential_lookback" validate:"gte=1"`

	// ProbingVectors triggers probing_behavior at this many distinct
	// attack-vector categories.
	ProbingVectors int `koanf:"probing_vectors" validate:"gte=1"`

	// EscalationMinSamples is the minimum scored samples required
	// before gradual_escalation can trigger.
	EscalationMinSamples int `koanf:"escalation_min_samples" validate:"gte=2"`

	// EscalationStep triggers gradual_escalation when the average
	// step-increase between consecutive scores exceeds it.
	EscalationStep float64 `koanf:"escalation_step" validate:"gte=0"`

	// Weights scale each pattern's confidence in the aggregate.
	// Unknown types weigh 1.0.
	Weights map[PatternType]float64 `koanf:"weights"`

	// BlockThreshold and AlertThreshold tier the recommendation by
	// overall confidence.
	BlockThreshold float64 `koanf:"block_threshold" validate:"gte=0,lte=1"`
	AlertThreshold float64 `koanf:"alert_threshold" validate:"gte=0,lte=1"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		RateThreshold:        10,
		SequentialRun:        3,
		SequentialLookback:   10,
		ProbingVectors:       3,
		EscalationMinSamples: 3,
		EscalationStep:       0.05,
		Weights: map[PatternType]float64{
			PatternSequentialInjection: 1.5,
			PatternProbingBehavior:     1.2,
			PatternRapidRequests:       1.0,
			PatternGradualEscalation:   1.0,
		},
		BlockThreshold: 0.8,
		AlertThreshold: 0.6,
	}
}
