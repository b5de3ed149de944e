// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package delivery

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/argus-sec/argus/internal/alert"
)

// fakeChannel scripts per-attempt outcomes for dispatcher tests.
type fakeChannel struct {
	typ ChannelType

	mu       sync.Mutex
	attempts int
	outcomes []Result
}

func (f *fakeChannel) Type() ChannelType           { return f.typ }
func (f *fakeChannel) Validate(*Destination) error { return nil }

func (f *fakeChannel) Send(_ context.Context, dest *Destination, _ *alert.Alert) (*Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.attempts
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	f.attempts++
	r := f.outcomes[idx]
	r.DestinationName = dest.Name
	r.ChannelType = f.typ
	return &r, nil
}

func (f *fakeChannel) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

func transientFailure() Result {
	return Result{ErrorMessage: "boom", ErrorCode: ErrorCodeServerError, IsTransient: true}
}

func newTestDispatcher(dests []Destination, fake *fakeChannel) (*Dispatcher, *[]time.Duration) {
	d := NewDispatcher(Config{Destinations: dests})
	d.registry.Register(fake)

	var delays []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		delays = append(delays, dur)
		return nil
	}
	return d, &delays
}

func testAlert(sev alert.Severity) *alert.Alert {
	return &alert.Alert{
		ID:        "a1",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		Severity:  sev,
		SessionID: "s1",
		UserID:    "u1",
	}
}

func webhookDest(name string, sevs ...alert.Severity) Destination {
	return Destination{
		Name:       name,
		Type:       ChannelWebhook,
		Enabled:    true,
		Severities: sevs,
		WebhookURL: "https://example.com/hook",
	}
}

func TestDispatcher_RetriesWithExponentialBackoff(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{transientFailure()}}
	d, delays := newTestDispatcher([]Destination{webhookDest("ops")}, fake)

	results := d.Deliver(context.Background(), testAlert(alert.SeverityHigh))
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}

	r := results[0]
	if r.Success {
		t.Error("Success = true, want terminal failure")
	}
	if r.RetryCount != 4 {
		t.Errorf("RetryCount = %d, want 4", r.RetryCount)
	}
	if fake.sendCount() != 5 {
		t.Errorf("attempts = %d, want 5", fake.sendCount())
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	if !reflect.DeepEqual(*delays, want) {
		t.Errorf("delays = %v, want %v", *delays, want)
	}
}

func TestDispatcher_StopsRetryingOnSuccess(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{
		transientFailure(),
		transientFailure(),
		{Success: true},
	}}
	d, delays := newTestDispatcher([]Destination{webhookDest("ops")}, fake)

	results := d.Deliver(context.Background(), testAlert(alert.SeverityHigh))
	r := results[0]
	if !r.Success {
		t.Fatalf("Success = false: %+v", r)
	}
	if r.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", r.RetryCount)
	}
	if len(*delays) != 2 {
		t.Errorf("delays = %v, want two entries", *delays)
	}
}

func TestDispatcher_PermanentFailureNotRetried(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{
		{ErrorMessage: "bad config", ErrorCode: ErrorCodeInvalidConfig},
	}}
	d, delays := newTestDispatcher([]Destination{webhookDest("ops")}, fake)

	results := d.Deliver(context.Background(), testAlert(alert.SeverityHigh))
	if fake.sendCount() != 1 {
		t.Errorf("attempts = %d, want 1", fake.sendCount())
	}
	if len(*delays) != 0 {
		t.Errorf("delays = %v, want none", *delays)
	}
	if results[0].Success {
		t.Error("Success = true, want failure")
	}
}

func TestDispatcher_RetryAfterOverridesBackoff(t *testing.T) {
	retryAfter := 7 * time.Second
	first := transientFailure()
	first.RetryAfter = &retryAfter
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{first, {Success: true}}}
	d, delays := newTestDispatcher([]Destination{webhookDest("ops")}, fake)

	d.Deliver(context.Background(), testAlert(alert.SeverityHigh))
	if len(*delays) != 1 || (*delays)[0] != retryAfter {
		t.Errorf("delays = %v, want [%v]", *delays, retryAfter)
	}
}

func TestDispatcher_SeverityRouting(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{{Success: true}}}
	dests := []Destination{
		webhookDest("critical-only", alert.SeverityCritical),
		webhookDest("all-severities"),
	}
	d, _ := newTestDispatcher(dests, fake)

	results := d.Deliver(context.Background(), testAlert(alert.SeverityMedium))
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].DestinationName != "all-severities" {
		t.Errorf("delivered to %s, want all-severities", results[0].DestinationName)
	}
}

func TestDispatcher_DisabledDestinationSkipped(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{{Success: true}}}
	dest := webhookDest("ops")
	dest.Enabled = false
	d, _ := newTestDispatcher([]Destination{dest}, fake)

	if results := d.Deliver(context.Background(), testAlert(alert.SeverityCritical)); results != nil {
		t.Errorf("results = %v, want nil", results)
	}
	if fake.sendCount() != 0 {
		t.Errorf("attempts = %d, want 0", fake.sendCount())
	}
}

func TestDispatcher_UpdateDestinations(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{{Success: true}}}
	d, _ := newTestDispatcher([]Destination{webhookDest("old")}, fake)

	d.UpdateDestinations([]Destination{webhookDest("new")})

	results := d.Deliver(context.Background(), testAlert(alert.SeverityHigh))
	if len(results) != 1 || results[0].DestinationName != "new" {
		t.Errorf("results = %+v, want delivery to new", results)
	}
}

func TestDispatcher_ServeDrainsQueue(t *testing.T) {
	fake := &fakeChannel{typ: ChannelWebhook, outcomes: []Result{{Success: true}}}
	d, _ := newTestDispatcher([]Destination{webhookDest("ops")}, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = d.Serve(ctx) }()

	done := make(chan []Result, 1)
	d.Enqueue(testAlert(alert.SeverityHigh), func(results []Result) {
		done <- results
	})

	select {
	case results := <-done:
		if len(results) != 1 || !results[0].Success {
			t.Errorf("results = %+v, want one success", results)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued alert was not delivered")
	}
}
