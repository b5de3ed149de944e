// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package delivery

import (
	"strings"
	"testing"
	"time"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/anomaly"
)

func emailDest() *Destination {
	return &Destination{
		Name:       "oncall",
		Type:       ChannelEmail,
		Enabled:    true,
		SMTPHost:   "smtp.example.com",
		SMTPPort:   587,
		SMTPFrom:   "argus@example.com",
		Recipients: []string{"oncall@example.com"},
	}
}

func emailTestAlert(sev alert.Severity) *alert.Alert {
	return &alert.Alert{
		ID:        "a1",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Severity:  sev,
		UserID:    "u1",
		SessionID: "s1",
		Patterns: []anomaly.Pattern{
			{Type: anomaly.PatternProbingBehavior, Confidence: 0.8},
		},
		OverallConfidence: 0.8,
		Recommendation:    anomaly.RecommendAlert,
	}
}

func TestEmailChannel_Validate(t *testing.T) {
	ch := NewEmailChannel()
	tests := []struct {
		name    string
		mutate  func(*Destination)
		wantErr bool
	}{
		{"valid", func(*Destination) {}, false},
		{"missing host", func(d *Destination) { d.SMTPHost = "" }, true},
		{"bad port", func(d *Destination) { d.SMTPPort = 0 }, true},
		{"missing from", func(d *Destination) { d.SMTPFrom = "" }, true},
		{"malformed from", func(d *Destination) { d.SMTPFrom = "not-an-address" }, true},
		{"no recipients", func(d *Destination) { d.Recipients = nil }, true},
		{"malformed recipient", func(d *Destination) { d.Recipients = []string{"bad@"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := emailDest()
			tt.mutate(dest)
			err := ch.Validate(dest)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEmailSubject(t *testing.T) {
	a := emailTestAlert(alert.SeverityCritical)
	got := emailSubject(a)
	want := "[argus] CRITICAL alert: probing_behavior"
	if got != want {
		t.Errorf("emailSubject() = %q, want %q", got, want)
	}

	a.Patterns = nil
	if got := emailSubject(a); got != "[argus] CRITICAL alert: anomalous activity" {
		t.Errorf("emailSubject() without patterns = %q", got)
	}
}

func TestSeverityColor(t *testing.T) {
	tests := []struct {
		sev  alert.Severity
		want string
	}{
		{alert.SeverityCritical, "#d32f2f"},
		{alert.SeverityHigh, "#f57c00"},
		{alert.SeverityMedium, "#fbc02d"},
		{alert.SeverityLow, "#388e3c"},
	}
	for _, tt := range tests {
		if got := severityColor(tt.sev); got != tt.want {
			t.Errorf("severityColor(%s) = %s, want %s", tt.sev, got, tt.want)
		}
	}
}

func TestBuildEmailMessage(t *testing.T) {
	msg := buildEmailMessage(emailDest(), emailTestAlert(alert.SeverityHigh))

	for _, want := range []string{
		"From: Argus <argus@example.com>",
		"To: oncall@example.com",
		"Subject: [argus] HIGH alert: probing_behavior",
		"X-Argus-Alert-ID: a1",
		"Content-Type: text/html",
		"#f57c00",
		"probing_behavior (confidence 0.80)",
		"<td>alert</td>",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}
