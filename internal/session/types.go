// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package session maintains bounded, time-expiring rolling metrics per
// session. It is the foundation the anomaly detector reads from.
package session

import (
	"time"
)

// Decision is the security verdict an upstream inspection layer reached
// for a single request.
type Decision string

const (
	DecisionAllow    Decision = "allow"
	DecisionBlock    Decision = "block"
	DecisionFlag     Decision = "flag"
	DecisionEscalate Decision = "escalate"
)

// Trend is the direction of a session's anomaly-score series.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendStable     Trend = "stable"
	TrendDecreasing Trend = "decreasing"
)

// trendSlopeEpsilon separates a flat series from a trending one.
const trendSlopeEpsilon = 0.01

// Gate reports whether anomaly detection is enabled. Every public
// operation checks it first; when disabled the tracker records nothing
// and reads as empty.
type Gate interface {
	AnomalyDetectionEnabled() bool
}

// Config bounds the tracker's memory and tunes its suspicion heuristics.
type Config struct {
	// WindowSize is the duration of both sliding windows.
	WindowSize time.Duration `koanf:"window_size"`

	// MaxSessions caps the number of tracked sessions; the least
	// recently used session is evicted beyond it.
	MaxSessions int `koanf:"max_sessions" validate:"gte=0"`

	// SessionTTL evicts sessions idle longer than this.
	SessionTTL time.Duration `koanf:"session_ttl"`

	// DecisionHistorySize caps the per-session decision history.
	DecisionHistorySize int `koanf:"decision_history_size" validate:"gte=0"`

	// PatternHistorySize caps the per-session pattern-category history.
	PatternHistorySize int `koanf:"pattern_history_size" validate:"gte=0"`

	// SuspiciousScore marks a session suspicious when its windowed
	// average anomaly score exceeds it.
	SuspiciousScore float64 `koanf:"suspicious_score" validate:"gte=0,lte=1"`

	// SuspiciousBlocked marks a session suspicious at this many
	// blocked requests.
	SuspiciousBlocked int `koanf:"suspicious_blocked" validate:"gte=0"`

	// RateThreshold marks a session suspicious above this many
	// requests per minute.
	RateThreshold float64 `koanf:"rate_threshold" validate:"gte=0"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:          5 * time.Minute,
		MaxSessions:         10000,
		SessionTTL:          30 * time.Minute,
		DecisionHistorySize: 50,
		PatternHistorySize:  100,
		SuspiciousScore:     0.6,
		SuspiciousBlocked:   5,
		RateThreshold:       10,
	}
}

// Snapshot is a read-only view of one session's rolling state.
type Snapshot struct {
	SessionID           string     `json:"session_id"`
	UserID              string     `json:"user_id"`
	FirstSeen           time.Time  `json:"first_seen"`
	LastSeen            time.Time  `json:"last_seen"`
	RequestCount        int        `json:"request_count"`
	BlockedCount        int        `json:"blocked_count"`
	FlaggedCount        int        `json:"flagged_count"`
	RequestRate         float64    `json:"request_rate"`
	AverageAnomalyScore float64    `json:"average_anomaly_score"`
	Trend               Trend      `json:"trend"`
	RecentDecisions     []Decision `json:"recent_decisions"`
	PatternCategories   []string   `json:"pattern_categories"`
	Suspicious          bool       `json:"suspicious"`
}
