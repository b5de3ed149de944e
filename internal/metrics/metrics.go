// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package metrics exposes Prometheus collectors for the monitoring
// pipeline. All collectors register on the default registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DecisionsTracked counts tracked security decisions by outcome.
	DecisionsTracked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "session",
		Name:      "decisions_tracked_total",
		Help:      "Security decisions recorded by the session tracker, by decision.",
	}, []string{"decision"})

	// ActiveSessions gauges the tracked session count.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "argus",
		Subsystem: "session",
		Name:      "active_sessions",
		Help:      "Sessions currently tracked.",
	})

	// SessionsEvicted counts sweeper evictions.
	SessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "session",
		Name:      "evicted_total",
		Help:      "Sessions evicted by the periodic TTL sweep.",
	})

	// Verdicts counts detection outcomes by recommendation.
	Verdicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "anomaly",
		Name:      "verdicts_total",
		Help:      "Anomaly verdicts produced, by recommendation.",
	}, []string{"recommendation"})

	// PatternsDetected counts triggered heuristics by type.
	PatternsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "anomaly",
		Name:      "patterns_detected_total",
		Help:      "Triggered anomaly patterns, by type.",
	}, []string{"pattern"})

	// AlertsGenerated counts alerts by severity.
	AlertsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "alert",
		Name:      "generated_total",
		Help:      "Alerts generated, by severity.",
	}, []string{"severity"})

	// AlertsSuppressed counts near-duplicate alerts dropped.
	AlertsSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "alert",
		Name:      "suppressed_total",
		Help:      "Alerts suppressed as near-duplicates.",
	})

	// DeliveryAttempts counts delivery attempts by channel and outcome.
	DeliveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "delivery",
		Name:      "attempts_total",
		Help:      "Alert delivery attempts, by channel and outcome.",
	}, []string{"channel", "outcome"})

	// DeliveryLatency observes end-to-end delivery latency per channel.
	DeliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "argus",
		Subsystem: "delivery",
		Name:      "latency_seconds",
		Help:      "Alert delivery latency, by channel.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"channel"})

	// QueueDropped counts alerts dropped because the dispatch queue was full.
	QueueDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "argus",
		Subsystem: "delivery",
		Name:      "queue_dropped_total",
		Help:      "Alerts dropped because the dispatch queue was full.",
	})
)
