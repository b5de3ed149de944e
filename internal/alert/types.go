// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package alert turns anomaly verdicts into severity-classified,
// deduplicated alerts and hands them to persistence and delivery.
package alert

import (
	"context"
	"time"

	"github.com/argus-sec/argus/internal/anomaly"
)

// Severity ranks an alert for routing. Serialized lowercase.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Context carries optional request metadata attached to an alert.
type Context struct {
	Endpoint     string `json:"endpoint,omitempty"`
	RequestCount int    `json:"request_count,omitempty"`
	BlockedCount int    `json:"blocked_count,omitempty"`
	RemoteAddr   string `json:"remote_addr,omitempty"`
}

// Alert is one generated security alert.
type Alert struct {
	ID                string                 `json:"id"`
	Timestamp         time.Time              `json:"timestamp"`
	Severity          Severity               `json:"severity"`
	UserID            string                 `json:"user_id"`
	SessionID         string                 `json:"session_id"`
	Patterns          []anomaly.Pattern      `json:"patterns"`
	OverallConfidence float64                `json:"overall_confidence"`
	Recommendation    anomaly.Recommendation `json:"recommendation"`
	Context           Context                `json:"context,omitempty"`
	Suppressed        bool                   `json:"suppressed"`
	RecordID          string                 `json:"record_id,omitempty"`
}

// Recorder persists alerts to an external store. Failures are
// non-fatal to alert generation.
type Recorder interface {
	CreateSecurityRecord(ctx context.Context, kind string, severity Severity, userID string, details any) (string, error)
	MarkRecordDelivered(ctx context.Context, recordID string, destinations []string) error
}

// Gate reports whether anomaly detection is enabled.
type Gate interface {
	AnomalyDetectionEnabled() bool
}

// Config tunes alert deduplication.
type Config struct {
	// SuppressionWindow is how long a prior alert suppresses
	// near-duplicates for the same session.
	SuppressionWindow time.Duration `koanf:"suppression_window"`

	// ConfidenceDelta is the minimum confidence rise over the recent
	// maximum that breaks suppression.
	ConfidenceDelta float64 `koanf:"confidence_delta" validate:"gte=0,lte=1"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SuppressionWindow: 5 * time.Minute,
		ConfidenceDelta:   0.2,
	}
}
