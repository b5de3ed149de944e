// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package monitor

import (
	"context"
	"time"

	"github.com/argus-sec/argus/internal/metrics"
	"github.com/argus-sec/argus/internal/session"
)

// Sweeper periodically evicts idle sessions. Lazy eviction on the
// write path keeps the tracker bounded; the sweep reclaims memory for
// sessions that simply stop sending. It satisfies suture.Service.
type Sweeper struct {
	tracker  *session.Tracker
	interval time.Duration
}

// NewSweeper creates a sweeper. A non-positive interval defaults to
// five minutes.
func NewSweeper(tracker *session.Tracker, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{tracker: tracker, interval: interval}
}

// Serve runs the sweep loop until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			removed := s.tracker.CleanupExpired()
			if removed > 0 {
				metrics.SessionsEvicted.Add(float64(removed))
			}
			metrics.ActiveSessions.Set(float64(s.tracker.Len()))
		}
	}
}
