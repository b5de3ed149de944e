// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package anomaly

import (
	"github.com/argus-sec/argus/internal/cache"
	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/session"
)

// Detector evaluates a session against the four heuristics. It holds
// no per-session state of its own; calling Detect twice without an
// intervening tracked request returns an identical verdict.
type Detector struct {
	cfg      Config
	sessions SessionReader
	gate     Gate
}

// NewDetector creates a detector over the given session reader. A nil
// gate means always enabled.
func NewDetector(cfg Config, sessions SessionReader, gate Gate) *Detector {
	def := DefaultConfig()
	if cfg.RateThreshold <= 0 {
		cfg.RateThreshold = def.RateThreshold
	}
	if cfg.SequentialRun <= 0 {
		cfg.SequentialRun = def.SequentialRun
	}
	if cfg.SequentialLookback <= 0 {
		cfg.SequentialLookback = def.SequentialLookback
	}
	if cfg.ProbingVectors <= 0 {
		cfg.ProbingVectors = def.ProbingVectors
	}
	if cfg.EscalationMinSamples <= 0 {
		cfg.EscalationMinSamples = def.EscalationMinSamples
	}
	if cfg.EscalationStep <= 0 {
		cfg.EscalationStep = def.EscalationStep
	}
	if cfg.Weights == nil {
		cfg.Weights = def.Weights
	}
	if cfg.BlockThreshold <= 0 {
		cfg.BlockThreshold = def.BlockThreshold
	}
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = def.AlertThreshold
	}
	return &Detector{cfg: cfg, sessions: sessions, gate: gate}
}

func (d *Detector) enabled() bool {
	return d.gate == nil || d.gate.AnomalyDetectionEnabled()
}

// Detect runs all four checks against current session state and
// aggregates the triggered patterns. It never fails: an unknown or
// empty session yields a non-anomalous verdict recommending monitor.
func (d *Detector) Detect(sessionID string) Verdict {
	verdict := Verdict{
		SessionID:      sessionID,
		Recommendation: RecommendMonitor,
	}
	if !d.enabled() {
		return verdict
	}

	if p, ok := d.checkRapidRequests(sessionID); ok {
		verdict.Patterns = append(verdict.Patterns, p)
	}
	if p, ok := d.checkSequentialInjection(sessionID); ok {
		verdict.Patterns = append(verdict.Patterns, p)
	}
	if p, ok := d.checkProbingBehavior(sessionID); ok {
		verdict.Patterns = append(verdict.Patterns, p)
	}
	if p, ok := d.checkGradualEscalation(sessionID); ok {
		verdict.Patterns = append(verdict.Patterns, p)
	}

	if len(verdict.Patterns) == 0 {
		return verdict
	}

	verdict.IsAnomalous = true
	verdict.OverallConfidence = d.aggregate(verdict.Patterns)
	verdict.Recommendation = d.recommend(verdict)

	logging.Debug().
		Str("session_id", sessionID).
		Int("patterns", len(verdict.Patterns)).
		Float64("confidence", verdict.OverallConfidence).
		Str("recommendation", string(verdict.Recommendation)).
		Msg("anomalous session detected")
	return verdict
}

// checkRapidRequests triggers above the per-minute rate threshold.
// Confidence starts at 0.5 at the threshold and scales with the ratio
// over it.
func (d *Detector) checkRapidRequests(sessionID string) (Pattern, bool) {
	rate := d.sessions.RequestRate(sessionID)
	if rate <= d.cfg.RateThreshold {
		return Pattern{}, false
	}
	conf := 0.5 * rate / d.cfg.RateThreshold
	if conf > 1 {
		conf = 1
	}
	return Pattern{
		Type:       PatternRapidRequests,
		Confidence: conf,
		Details: map[string]any{
			"request_rate": rate,
			"threshold":    d.cfg.RateThreshold,
		},
	}, true
}

// checkSequentialInjection triggers when the longest run of
// consecutive blocks among the recent decisions reaches the
// configured run length.
func (d *Detector) checkSequentialInjection(sessionID string) (Pattern, bool) {
	decisions := d.sessions.RecentDecisions(sessionID, d.cfg.SequentialLookback)
	run := longestBlockRun(decisions)
	if run < d.cfg.SequentialRun {
		return Pattern{}, false
	}
	conf := float64(run) / 5
	if conf > 1 {
		conf = 1
	}
	return Pattern{
		Type:       PatternSequentialInjection,
		Confidence: conf,
		Details: map[string]any{
			"consecutive_blocks": run,
			"threshold":          d.cfg.SequentialRun,
		},
	}, true
}

func longestBlockRun(decisions []session.Decision) int {
	longest, current := 0, 0
	for _, dec := range decisions {
		if dec == session.DecisionBlock {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 0
		}
	}
	return longest
}

// checkProbingBehavior triggers when the session has probed enough
// distinct attack-vector categories.
func (d *Detector) checkProbingBehavior(sessionID string) (Pattern, bool) {
	categories := d.sessions.UniquePatternCategories(sessionID)
	if len(categories) < d.cfg.ProbingVectors {
		return Pattern{}, false
	}
	conf := float64(len(categories)) / 5
	if conf > 1 {
		conf = 1
	}
	return Pattern{
		Type:       PatternProbingBehavior,
		Confidence: conf,
		Details: map[string]any{
			"distinct_vectors": len(categories),
			"vectors":          categories,
			"threshold":        d.cfg.ProbingVectors,
		},
	}, true
}

// checkGradualEscalation triggers when anomaly scores climb: enough
// samples, a positive regression slope, and an average step-increase
// above the configured threshold.
func (d *Detector) checkGradualEscalation(sessionID string) (Pattern, bool) {
	scores := d.sessions.RecentAnomalyScores(sessionID)
	if len(scores) < d.cfg.EscalationMinSamples {
		return Pattern{}, false
	}
	if cache.SlopeOf(scores) <= 0 {
		return Pattern{}, false
	}
	avgStep := averageStep(scores)
	if avgStep <= d.cfg.EscalationStep {
		return Pattern{}, false
	}
	conf := avgStep / 0.2
	if conf > 1 {
		conf = 1
	}
	return Pattern{
		Type:       PatternGradualEscalation,
		Confidence: conf,
		Details: map[string]any{
			"samples":          len(scores),
			"average_increase": avgStep,
			"threshold":        d.cfg.EscalationStep,
		},
	}, true
}

func averageStep(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(scores); i++ {
		sum += scores[i] - scores[i-1]
	}
	return sum / float64(len(scores)-1)
}

// aggregate folds triggered-pattern confidences into one value: a
// weighted average, boosted 0.1 per corroborating pattern beyond the
// first (boost capped at 0.3), capped at 1.0.
func (d *Detector) aggregate(patterns []Pattern) float64 {
	var weighted, totalWeight float64
	for _, p := range patterns {
		w, ok := d.cfg.Weights[p.Type]
		if !ok {
			w = 1.0
		}
		weighted += p.Confidence * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 0
	}
	conf := weighted / totalWeight

	boost := 0.1 * float64(len(patterns)-1)
	if boost > 0.3 {
		boost = 0.3
	}
	conf += boost
	if conf > 1 {
		conf = 1
	}
	return conf
}

// recommend tiers the action. A confident sequential-injection run
// forces a session block even below the overall block threshold.
func (d *Detector) recommend(v Verdict) Recommendation {
	if v.OverallConfidence >= d.cfg.BlockThreshold {
		return RecommendBlockSession
	}
	for _, p := range v.Patterns {
		if p.Type == PatternSequentialInjection && p.Confidence > 0.7 {
			return RecommendBlockSession
		}
	}
	if v.OverallConfidence >= d.cfg.AlertThreshold {
		return RecommendAlert
	}
	return RecommendMonitor
}
