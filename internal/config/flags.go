// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package config

import (
	"sync/atomic"
)

// FeatureFlags holds runtime-togglable switches. It satisfies the
// detection gate interfaces of the session, anomaly, and alert
// packages, so flipping the flag quiesces the whole pipeline without
// a restart.
type FeatureFlags struct {
	anomalyDetection atomic.Bool
}

// NewFeatureFlags creates the flag set with the configured initial
// state.
func NewFeatureFlags(detection DetectionConfig) *FeatureFlags {
	f := &FeatureFlags{}
	f.anomalyDetection.Store(detection.Enabled)
	return f
}

// AnomalyDetectionEnabled reports whether detection is on.
func (f *FeatureFlags) AnomalyDetectionEnabled() bool {
	return f.anomalyDetection.Load()
}

// SetAnomalyDetection flips the detection switch at runtime.
func (f *FeatureFlags) SetAnomalyDetection(enabled bool) {
	f.anomalyDetection.Store(enabled)
}
