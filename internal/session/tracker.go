// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package session

import (
	"sync"
	"time"

	"github.com/argus-sec/argus/internal/cache"
	"github.com/argus-sec/argus/internal/logging"
)

// record holds one session's mutable rolling state. The tracker's map
// lock covers lookup and LRU order; record.mu covers the state itself so
// cross-session operations never hold a session's lock.
type record struct {
	mu sync.Mutex

	sessionID string
	userID    string
	firstSeen time.Time
	lastSeen  time.Time

	requestCount int
	blockedCount int
	flaggedCount int

	decisions *cache.Ring[Decision]
	patterns  *cache.Ring[string]

	anomalyWindow *cache.TimeWindow
	requestWindow *cache.TimeWindow
}

// lruEntry is a node in the tracker's recency list.
// head.next is the most recently used, tail.prev the least.
type lruEntry struct {
	key        string
	rec        *record
	lastAccess time.Time
	prev, next *lruEntry
}

// Tracker maintains a bounded, time-expiring collection of per-session
// rolling metrics. Sessions are created on first reported decision and
// destroyed only by LRU-capacity or TTL eviction.
type Tracker struct {
	mu    sync.Mutex
	cfg   Config
	gate  Gate
	items map[string]*lruEntry
	head  *lruEntry
	tail  *lruEntry

	// now is replaceable in tests.
	now func() time.Time
}

// NewTracker creates a session tracker. A nil gate means always enabled.
func NewTracker(cfg Config, gate Gate) *Tracker {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = def.SessionTTL
	}
	if cfg.DecisionHistorySize <= 0 {
		cfg.DecisionHistorySize = def.DecisionHistorySize
	}
	if cfg.PatternHistorySize <= 0 {
		cfg.PatternHistorySize = def.PatternHistorySize
	}
	if cfg.SuspiciousScore <= 0 {
		cfg.SuspiciousScore = def.SuspiciousScore
	}
	if cfg.SuspiciousBlocked <= 0 {
		cfg.SuspiciousBlocked = def.SuspiciousBlocked
	}
	if cfg.RateThreshold <= 0 {
		cfg.RateThreshold = def.RateThreshold
	}

	t := &Tracker{
		cfg:   cfg,
		gate:  gate,
		items: make(map[string]*lruEntry),
		head:  &lruEntry{},
		tail:  &lruEntry{},
		now:   time.Now,
	}
	t.head.next = t.tail
	t.tail.prev = t.head
	return t
}

func (t *Tracker) enabled() bool {
	return t.gate == nil || t.gate.AnomalyDetectionEnabled()
}

// TrackRequest records one classified request for a session. It never
// rejects: the session record is created on first call, counters and
// histories are appended, and both sliding windows are updated and
// pruned. An out-of-range anomaly score is clamped to [0,1].
func (t *Tracker) TrackRequest(sessionID, userID string, anomalyScore float64, decision Decision, patternCategory string) {
	if !t.enabled() {
		return
	}

	if anomalyScore < 0 {
		anomalyScore = 0
	} else if anomalyScore > 1 {
		anomalyScore = 1
	}

	now := t.now()
	rec := t.touch(sessionID, userID, now)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	rec.lastSeen = now
	rec.requestCount++
	switch decision {
	case DecisionBlock:
		rec.blockedCount++
	case DecisionFlag:
		rec.flaggedCount++
	}

	rec.decisions.Push(decision)
	if patternCategory != "" {
		rec.patterns.Push(patternCategory)
	}

	rec.anomalyWindow.Add(now, anomalyScore)
	rec.requestWindow.Add(now, 1)
}

// touch returns the record for a session, creating it when absent,
// refreshing its recency position, and running eviction.
func (t *Tracker) touch(sessionID, userID string, now time.Time) *record {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[sessionID]
	if !ok {
		entry = &lruEntry{
			key: sessionID,
			rec: &record{
				sessionID:     sessionID,
				userID:        userID,
				firstSeen:     now,
				lastSeen:      now,
				decisions:     cache.NewRing[Decision](t.cfg.DecisionHistorySize),
				patterns:      cache.NewRing[string](t.cfg.PatternHistorySize),
				anomalyWindow: cache.NewTimeWindow(t.cfg.WindowSize),
				requestWindow: cache.NewTimeWindow(t.cfg.WindowSize),
			},
		}
		t.items[sessionID] = entry
		t.addToFront(entry)
	} else {
		t.moveToFront(entry)
	}
	entry.lastAccess = now

	t.evictLocked(now)
	return entry.rec
}

// lookup returns the record for a session and refreshes its recency
// position, or nil when the session is unknown.
func (t *Tracker) lookup(sessionID string) *record {
	if !t.enabled() {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.items[sessionID]
	if !ok {
		return nil
	}
	entry.lastAccess = t.now()
	t.moveToFront(entry)
	return entry.rec
}

// RequestRate returns the session's requests per minute, computed from
// the request window's count divided by the window duration in minutes.
// Unknown sessions have rate 0.
func (t *Tracker) RequestRate(sessionID string) float64 {
	rec := t.lookup(sessionID)
	if rec == nil {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return t.rateLocked(rec)
}

func (t *Tracker) rateLocked(rec *record) float64 {
	count := rec.requestWindow.Count(t.now())
	minutes := t.cfg.WindowSize.Minutes()
	if minutes == 0 {
		return 0
	}
	return float64(count) / minutes
}

// AnomalyTrend returns the direction of the session's windowed anomaly
// scores via ordinary least-squares slope against index position.
// Unknown or short series read as stable.
func (t *Tracker) AnomalyTrend(sessionID string) Trend {
	rec := t.lookup(sessionID)
	if rec == nil {
		return TrendStable
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return trendOfSlope(rec.anomalyWindow.Slope(t.now()))
}

func trendOfSlope(slope float64) Trend {
	switch {
	case slope > trendSlopeEpsilon:
		return TrendIncreasing
	case slope < -trendSlopeEpsilon:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

// RecentDecisions returns up to n of the session's most recent
// decisions, oldest first.
func (t *Tracker) RecentDecisions(sessionID string, n int) []Decision {
	rec := t.lookup(sessionID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.decisions.Last(n)
}

// UniquePatternCategories returns the distinct attack-vector categories
// seen in the session's pattern history, in first-seen order.
func (t *Tracker) UniquePatternCategories(sessionID string) []string {
	rec := t.lookup(sessionID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	seen := make(map[string]struct{})
	out := make([]string, 0, 8)
	for _, p := range rec.patterns.Values() {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// RecentAnomalyScores returns the session's windowed anomaly scores,
// oldest first.
func (t *Tracker) RecentAnomalyScores(sessionID string) []float64 {
	rec := t.lookup(sessionID)
	if rec == nil {
		return nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.anomalyWindow.Values(t.now())
}

// Suspicious reports whether a session's windowed average anomaly score,
// blocked count, or request rate crosses its configured threshold.
func (t *Tracker) Suspicious(sessionID string) bool {
	rec := t.lookup(sessionID)
	if rec == nil {
		return false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.anomalyWindow.Average(t.now()) > t.cfg.SuspiciousScore {
		return true
	}
	if rec.blockedCount >= t.cfg.SuspiciousBlocked {
		return true
	}
	return t.rateLocked(rec) > t.cfg.RateThreshold
}

// Snapshot returns a read-only view of one session's rolling state.
func (t *Tracker) Snapshot(sessionID string) (Snapshot, bool) {
	rec := t.lookup(sessionID)
	if rec == nil {
		return Snapshot{}, false
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	now := t.now()
	snap := Snapshot{
		SessionID:           rec.sessionID,
		UserID:              rec.userID,
		FirstSeen:           rec.firstSeen,
		LastSeen:            rec.lastSeen,
		RequestCount:        rec.requestCount,
		BlockedCount:        rec.blockedCount,
		FlaggedCount:        rec.flaggedCount,
		RequestRate:         t.rateLocked(rec),
		AverageAnomalyScore: rec.anomalyWindow.Average(now),
		Trend:               trendOfSlope(rec.anomalyWindow.Slope(now)),
		RecentDecisions:     rec.decisions.Values(),
		PatternCategories:   rec.patterns.Values(),
	}
	snap.Suspicious = snap.AverageAnomalyScore > t.cfg.SuspiciousScore ||
		rec.blockedCount >= t.cfg.SuspiciousBlocked ||
		snap.RequestRate > t.cfg.RateThreshold
	return snap, true
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.items)
}

// Reset discards all tracked sessions.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items = make(map[string]*lruEntry)
	t.head.next = t.tail
	t.tail.prev = t.head
}

// CleanupExpired removes sessions idle longer than the TTL. It is the
// best-effort sweep run periodically by the supervisor; lazy eviction on
// the write path keeps the tracker bounded without it. Returns the
// number of sessions removed.
func (t *Tracker) CleanupExpired() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for entry := t.tail.prev; entry != t.head; {
		prev := entry.prev
		if now.Sub(entry.lastAccess) > t.cfg.SessionTTL {
			t.removeLocked(entry)
			removed++
		}
		entry = prev
	}
	if removed > 0 {
		logging.Debug().Int("removed", removed).Msg("expired sessions evicted")
	}
	return removed
}

// evictLocked enforces the TTL and the capacity bound, oldest first.
// Must be called with t.mu held.
func (t *Tracker) evictLocked(now time.Time) {
	for entry := t.tail.prev; entry != t.head; {
		prev := entry.prev
		if now.Sub(entry.lastAccess) > t.cfg.SessionTTL {
			t.removeLocked(entry)
		}
		entry = prev
	}
	for len(t.items) > t.cfg.MaxSessions {
		oldest := t.tail.prev
		if oldest == t.head {
			return
		}
		t.removeLocked(oldest)
	}
}

func (t *Tracker) addToFront(entry *lruEntry) {
	entry.prev = t.head
	entry.next = t.head.next
	t.head.next.prev = entry
	t.head.next = entry
}

func (t *Tracker) moveToFront(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	t.addToFront(entry)
}

func (t *Tracker) removeLocked(entry *lruEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	delete(t.items, entry.key)
}
