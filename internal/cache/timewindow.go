// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package cache provides the bounded data structures used by session
// tracking: timestamped sliding windows and fixed-capacity ring buffers.
package cache

import (
	"time"
)

// Sample is a timestamped observation in a sliding window.
type Sample struct {
	At    time.Time
	Value float64
}

// TimeWindow holds timestamped values pruned to a fixed duration.
// Pruning is lazy: every accessor discards entries older than the window
// size relative to the supplied reference time, so memory is bounded by
// the number of samples inside one window, not by total volume.
//
// TimeWindow is not safe for concurrent use; callers synchronize access
// (the session tracker holds a per-session lock).
type TimeWindow struct {
	size    time.Duration
	samples []Sample
}

// NewTimeWindow creates a sliding window of the given duration.
func NewTimeWindow(size time.Duration) *TimeWindow {
	if size <= 0 {
		size = 5 * time.Minute
	}
	return &TimeWindow{
		size:    size,
		samples: make([]Sample, 0, 64),
	}
}

// Size returns the window duration.
func (w *TimeWindow) Size() time.Duration {
	return w.size
}

// Add appends a sample and prunes entries that have aged out relative to
// the sample's timestamp.
func (w *TimeWindow) Add(at time.Time, value float64) {
	w.Prune(at)
	w.samples = append(w.samples, Sample{At: at, Value: value})
}

// Prune discards samples strictly older than the window size at the
// given time; a sample exactly one window old stays. Pruning is
// idempotent and monotonic: pruning at a later time can only remove
// more entries.
func (w *TimeWindow) Prune(now time.Time) {
	cutoff := now.Add(-w.size)
	i := 0
	for i < len(w.samples) && w.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.samples = append(w.samples[:0], w.samples[i:]...)
	}
}

// Count returns the number of samples inside the window at the given time.
func (w *TimeWindow) Count(now time.Time) int {
	w.Prune(now)
	return len(w.samples)
}

// Sum returns the sum of sample values inside the window.
func (w *TimeWindow) Sum(now time.Time) float64 {
	w.Prune(now)
	var total float64
	for _, s := range w.samples {
		total += s.Value
	}
	return total
}

// Average returns the mean of sample values inside the window, or 0 when
// the window is empty.
func (w *TimeWindow) Average(now time.Time) float64 {
	total := w.Sum(now)
	if len(w.samples) == 0 {
		return 0
	}
	return total / float64(len(w.samples))
}

// Values returns the sample values inside the window, oldest first.
func (w *TimeWindow) Values(now time.Time) []float64 {
	w.Prune(now)
	values := make([]float64, len(w.samples))
	for i, s := range w.samples {
		values[i] = s.Value
	}
	return values
}

// Slope returns the ordinary least-squares slope of sample values against
// their index position. Fewer than two samples yields 0.
func (w *TimeWindow) Slope(now time.Time) float64 {
	w.Prune(now)
	return SlopeOf(valuesOf(w.samples))
}

// Reset discards all samples.
func (w *TimeWindow) Reset() {
	w.samples = w.samples[:0]
}

func valuesOf(samples []Sample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

// SlopeOf computes the ordinary least-squares slope of values against
// index positions 0..n-1. It is the trend primitive shared by the session
// tracker and the anomaly detector.
func SlopeOf(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (fn*sumXY - sumX*sumY) / denom
}
