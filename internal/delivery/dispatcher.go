// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/argus-sec/argus/internal/alert"
	"github.com/argus-sec/argus/internal/logging"
	"github.com/argus-sec/argus/internal/metrics"
)

// RetryConfig controls the per-destination retry loop.
type RetryConfig struct {
	// MaxAttempts is the total number of delivery attempts.
	MaxAttempts int `koanf:"max_attempts" validate:"gte=1"`

	// InitialDelay is the pause before the first retry.
	InitialDelay time.Duration `koanf:"initial_delay"`

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64 `koanf:"multiplier" validate:"gte=1"`

	// MaxDelay caps the backoff.
	MaxDelay time.Duration `koanf:"max_delay"`
}

// Config configures the dispatcher.
type Config struct {
	Retry        RetryConfig   `koanf:"retry"`
	QueueSize    int           `koanf:"queue_size" validate:"gte=0"`
	Destinations []Destination `koanf:"destinations" validate:"dive"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retry: RetryConfig{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			Multiplier:   2,
			MaxDelay:     30 * time.Second,
		},
		QueueSize: 256,
	}
}

// job is one queued alert with its completion callback.
type job struct {
	alert *alert.Alert
	done  func([]Result)
}

// Dispatcher fans alerts out to all subscribing destinations, each in
// its own goroutine with independent retry. It implements
// suture.Service so the supervisor owns its queue-draining loop.
type Dispatcher struct {
	registry *Registry
	retry    RetryConfig
	queue    chan job

	mu           sync.RWMutex
	destinations []Destination

	log zerolog.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher over the default channel
// registry.
func NewDispatcher(cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay <= 0 {
		cfg.Retry.InitialDelay = def.Retry.InitialDelay
	}
	if cfg.Retry.Multiplier < 1 {
		cfg.Retry.Multiplier = def.Retry.Multiplier
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	return &Dispatcher{
		registry:     NewRegistry(),
		retry:        cfg.Retry,
		queue:        make(chan job, cfg.QueueSize),
		destinations: cfg.Destinations,
		log:          logging.With().Str("component", "dispatcher").Logger(),
		sleep:        sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// UpdateDestinations replaces the destination set at runtime.
func (d *Dispatcher) UpdateDestinations(dests []Destination) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destinations = dests
}

// Destinations returns a copy of the current destination set.
func (d *Dispatcher) Destinations() []Destination {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Destination, len(d.destinations))
	copy(out, d.destinations)
	return out
}

// Enqueue hands an alert to the queue for asynchronous delivery. The
// callback, if non-nil, runs with the per-destination results once all
// destinations finish. When the queue is full the alert is dropped and
// counted rather than blocking the detection path.
func (d *Dispatcher) Enqueue(a *alert.Alert, done func([]Result)) {
	select {
	case d.queue <- job{alert: a, done: done}:
	default:
		metrics.QueueDropped.Inc()
		d.log.Warn().Str("alert_id", a.ID).Msg("dispatch queue full, alert dropped")
	}
}

// Serve drains the queue until the context is canceled. It satisfies
// suture.Service.
func (d *Dispatcher) Serve(ctx context.Context) error {
	d.log.Info().Msg("alert dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("alert dispatcher stopped")
			return ctx.Err()
		case j := <-d.queue:
			results := d.Deliver(ctx, j.alert)
			if j.done != nil {
				j.done(results)
			}
		}
	}
}

// Deliver sends one alert to every enabled destination subscribed to
// its severity, one goroutine per destination, and returns all
// results.
func (d *Dispatcher) Deliver(ctx context.Context, a *alert.Alert) []Result {
	targets := d.targetsFor(a.Severity)
	if len(targets) == 0 {
		return nil
	}

	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, dest := range targets {
		wg.Add(1)
		go func(i int, dest Destination) {
			defer wg.Done()
			results[i] = d.deliverWithRetry(ctx, dest, a)
		}(i, dest)
	}
	wg.Wait()

	for _, r := range results {
		if r.Success {
			d.log.Info().
				Str("alert_id", a.ID).
				Str("destination", r.DestinationName).
				Str("channel", string(r.ChannelType)).
				Int64("latency_ms", r.LatencyMs).
				Int("retries", r.RetryCount).
				Msg("alert delivered")
		} else {
			d.log.Error().
				Str("alert_id", a.ID).
				Str("destination", r.DestinationName).
				Str("channel", string(r.ChannelType)).
				Str("error_code", r.ErrorCode).
				Str("error", r.ErrorMessage).
				Int("retries", r.RetryCount).
				Msg("alert delivery failed")
		}
	}
	return results
}

func (d *Dispatcher) targetsFor(sev alert.Severity) []Destination {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var targets []Destination
	for _, dest := range d.destinations {
		if dest.Accepts(sev) {
			targets = append(targets, dest)
		}
	}
	return targets
}

// deliverWithRetry attempts delivery up to MaxAttempts times with
// exponential backoff. Permanent failures stop the loop immediately;
// a server-provided Retry-After overrides the computed delay.
func (d *Dispatcher) deliverWithRetry(ctx context.Context, dest Destination, a *alert.Alert) Result {
	ch, ok := d.registry.Get(dest.Type)
	if !ok {
		return Result{
			DestinationName: dest.Name,
			ChannelType:     dest.Type,
			ErrorMessage:    "unknown channel type",
			ErrorCode:       ErrorCodeInvalidConfig,
		}
	}

	start := time.Now()
	var last *Result
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.backoff(attempt-1, last)
			d.log.Debug().
				Str("alert_id", a.ID).
				Str("destination", dest.Name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying delivery")
			if err := d.sleep(ctx, delay); err != nil {
				last.ErrorMessage = "delivery canceled: " + err.Error()
				last.ErrorCode = ErrorCodeTimeout
				break
			}
		}

		result, err := ch.Send(ctx, &dest, a)
		if err != nil {
			result = &Result{
				DestinationName: dest.Name,
				ChannelType:     dest.Type,
				ErrorMessage:    err.Error(),
				ErrorCode:       ErrorCodeUnknown,
			}
		}
		result.RetryCount = attempt - 1
		last = result

		if result.Success {
			metrics.DeliveryAttempts.WithLabelValues(string(dest.Type), "success").Inc()
			break
		}
		metrics.DeliveryAttempts.WithLabelValues(string(dest.Type), "failure").Inc()
		if !result.IsTransient {
			break
		}
	}

	elapsed := time.Since(start)
	last.LatencyMs = elapsed.Milliseconds()
	metrics.DeliveryLatency.WithLabelValues(string(dest.Type)).Observe(elapsed.Seconds())
	return *last
}

// backoff computes the delay before the next attempt: the initial
// delay grown by the multiplier per completed attempt, capped at the
// maximum.
func (d *Dispatcher) backoff(completed int, last *Result) time.Duration {
	if last != nil && last.RetryAfter != nil {
		return *last.RetryAfter
	}
	delay := d.retry.InitialDelay
	for i := 1; i < completed; i++ {
		delay = time.Duration(float64(delay) * d.retry.Multiplier)
		if delay >= d.retry.MaxDelay {
			return d.retry.MaxDelay
		}
	}
	return delay
}
