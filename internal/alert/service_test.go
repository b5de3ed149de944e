// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/argus-sec/argus/internal/anomaly"
)

type fakeRecorder struct {
	created   int
	delivered map[string][]string
	fail      bool
}

func (r *fakeRecorder) CreateSecurityRecord(_ context.Context, _ string, _ Severity, _ string, _ any) (string, error) {
	if r.fail {
		return "", errors.New("store unavailable")
	}
	r.created++
	return "rec-1", nil
}

func (r *fakeRecorder) MarkRecordDelivered(_ context.Context, recordID string, destinations []string) error {
	if r.fail {
		return errors.New("store unavailable")
	}
	if r.delivered == nil {
		r.delivered = make(map[string][]string)
	}
	r.delivered[recordID] = destinations
	return nil
}

func newTestService(rec Recorder) (*Service, *time.Time) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(Config{}, rec, nil)
	svc.now = func() time.Time { return now }
	return svc, &now
}

func verdictWith(conf float64, rec anomaly.Recommendation, patterns ...anomaly.Pattern) anomaly.Verdict {
	return anomaly.Verdict{
		SessionID:         "s1",
		IsAnomalous:       true,
		OverallConfidence: conf,
		Patterns:          patterns,
		Recommendation:    rec,
	}
}

func probing(conf float64) anomaly.Pattern {
	return anomaly.Pattern{Type: anomaly.PatternProbingBehavior, Confidence: conf}
}

func TestService_NonAnomalousVerdictYieldsNoAlert(t *testing.T) {
	svc, _ := newTestService(nil)

	a := svc.Generate(context.Background(), anomaly.Verdict{SessionID: "s1"}, "u1", Context{})
	if a != nil {
		t.Errorf("Generate() = %+v, want nil", a)
	}
}

func TestService_SuppressesNearDuplicate(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	first := svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})
	if first == nil || first.Suppressed {
		t.Fatalf("first alert = %+v, want unsuppressed", first)
	}

	// Confidence rose by only 0.05, below the 0.2 delta.
	second := svc.Generate(ctx, verdictWith(0.65, anomaly.RecommendAlert, probing(0.65)), "u1", Context{})
	if second == nil || !second.Suppressed {
		t.Fatalf("second alert = %+v, want suppressed", second)
	}
}

func TestService_MaterialConfidenceRiseBreaksSuppression(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})

	// Delta 0.25 >= 0.2 breaks suppression.
	second := svc.Generate(ctx, verdictWith(0.85, anomaly.RecommendBlockSession, probing(0.85)), "u1", Context{})
	if second == nil || second.Suppressed {
		t.Fatalf("second alert = %+v, want unsuppressed", second)
	}
}

func TestService_PatternConfidenceRiseBreaksSuppressionDespiteBoostedOverall(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})

	// The corroboration boost keeps the overall confidence close to the
	// prior alert (delta 0.15), but the strongest pattern jumped from
	// 0.6 to 0.95. Suppression compares pattern confidences, so the
	// second alert goes out.
	rapid := anomaly.Pattern{Type: anomaly.PatternRapidRequests, Confidence: 0.95}
	second := svc.Generate(ctx, verdictWith(0.75, anomaly.RecommendAlert, probing(0.62), rapid), "u1", Context{})
	if second == nil || second.Suppressed {
		t.Fatalf("second alert = %+v, want unsuppressed", second)
	}
}

func TestService_DifferentPatternTypeNotSuppressed(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})

	rapid := anomaly.Pattern{Type: anomaly.PatternRapidRequests, Confidence: 0.6}
	second := svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, rapid), "u1", Context{})
	if second == nil || second.Suppressed {
		t.Fatalf("second alert = %+v, want unsuppressed", second)
	}
}

func TestService_SuppressionExpiresWithWindow(t *testing.T) {
	svc, now := newTestService(nil)
	ctx := context.Background()

	svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})

	*now = now.Add(6 * time.Minute)
	second := svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})
	if second == nil || second.Suppressed {
		t.Fatalf("alert after window = %+v, want unsuppressed", second)
	}
}

func TestService_SessionsSuppressIndependently(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	svc.Generate(ctx, verdictWith(0.6, anomaly.RecommendAlert, probing(0.6)), "u1", Context{})

	v := verdictWith(0.6, anomaly.RecommendAlert, probing(0.6))
	v.SessionID = "s2"
	other := svc.Generate(ctx, v, "u1", Context{})
	if other == nil || other.Suppressed {
		t.Fatalf("alert for other session = %+v, want unsuppressed", other)
	}
}

func TestClassifySeverity(t *testing.T) {
	seq := func(conf float64) anomaly.Pattern {
		return anomaly.Pattern{Type: anomaly.PatternSequentialInjection, Confidence: conf}
	}
	tests := []struct {
		name    string
		verdict anomaly.Verdict
		want    Severity
	}{
		{"very high confidence", verdictWith(0.95, anomaly.RecommendAlert, probing(0.95)), SeverityCritical},
		{"block recommendation", verdictWith(0.75, anomaly.RecommendBlockSession, seq(0.8)), SeverityCritical},
		{"high confidence no sequential", verdictWith(0.72, anomaly.RecommendAlert, probing(0.72)), SeverityHigh},
		{"confident sequential run", verdictWith(0.6, anomaly.RecommendAlert, seq(0.8)), SeverityHigh},
		{"moderate single pattern", verdictWith(0.55, anomaly.RecommendMonitor, probing(0.55)), SeverityMedium},
		{"two weak patterns", verdictWith(0.4, anomaly.RecommendMonitor, probing(0.4), seq(0.3)), SeverityMedium},
		{"weak single pattern", verdictWith(0.2, anomaly.RecommendMonitor, probing(0.2)), SeverityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifySeverity(tt.verdict); got != tt.want {
				t.Errorf("classifySeverity() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestService_PersistsThroughRecorder(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(rec)

	a := svc.Generate(context.Background(), verdictWith(0.8, anomaly.RecommendBlockSession, probing(0.8)), "u1", Context{})
	if a == nil {
		t.Fatal("expected alert")
	}
	if rec.created != 1 {
		t.Errorf("created = %d, want 1", rec.created)
	}
	if a.RecordID != "rec-1" {
		t.Errorf("RecordID = %q, want rec-1", a.RecordID)
	}
}

func TestService_RecorderFailureIsSwallowed(t *testing.T) {
	rec := &fakeRecorder{fail: true}
	svc, _ := newTestService(rec)

	a := svc.Generate(context.Background(), verdictWith(0.8, anomaly.RecommendBlockSession, probing(0.8)), "u1", Context{})
	if a == nil {
		t.Fatal("persistence failure must not block alert generation")
	}
	if a.RecordID != "" {
		t.Errorf("RecordID = %q, want empty", a.RecordID)
	}
}

func TestService_MarkSent(t *testing.T) {
	rec := &fakeRecorder{}
	svc, _ := newTestService(rec)
	ctx := context.Background()

	a := svc.Generate(ctx, verdictWith(0.8, anomaly.RecommendBlockSession, probing(0.8)), "u1", Context{})
	svc.MarkSent(ctx, a, []string{"ops-webhook"})

	if got := rec.delivered["rec-1"]; len(got) != 1 || got[0] != "ops-webhook" {
		t.Errorf("delivered = %v, want [ops-webhook]", got)
	}
}

type offGate struct{}

func (offGate) AnomalyDetectionEnabled() bool { return false }

func TestService_DisabledGate(t *testing.T) {
	svc := NewService(Config{}, nil, offGate{})

	a := svc.Generate(context.Background(), verdictWith(0.9, anomaly.RecommendBlockSession, probing(0.9)), "u1", Context{})
	if a != nil {
		t.Errorf("Generate() = %+v, want nil while disabled", a)
	}
}
