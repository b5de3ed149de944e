// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package delivery

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/argus-sec/argus/internal/alert"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookChannel posts alerts as JSON to configured HTTP endpoints.
// Each destination gets its own circuit breaker and rate limiter so a
// misbehaving endpoint cannot starve the others.
type WebhookChannel struct {
	client *http.Client

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[*http.Response]
	limiters map[string]*rate.Limiter
}

// NewWebhookChannel creates a webhook delivery channel. The client
// carries no timeout of its own; the per-destination timeout is
// applied through the request context in Send, so a destination may
// configure a deadline longer than the default.
func NewWebhookChannel() *WebhookChannel {
	return &WebhookChannel{
		client:   &http.Client{},
		breakers: make(map[string]*gobreaker.CircuitBreaker[*http.Response]),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Type returns the channel identifier.
func (c *WebhookChannel) Type() ChannelType {
	return ChannelWebhook
}

// Validate checks the webhook destination configuration.
func (c *WebhookChannel) Validate(dest *Destination) error {
	if dest == nil {
		return fmt.Errorf("webhook destination is required")
	}
	return ValidateWebhookURL(dest.WebhookURL)
}

// webhookPayload is the wire format posted to webhook endpoints.
type webhookPayload struct {
	Alert   webhookAlert `json:"alert"`
	Source  string       `json:"source"`
	Version string       `json:"version"`
}

type webhookAlert struct {
	ID             string           `json:"id"`
	Timestamp      time.Time        `json:"timestamp"`
	Severity       alert.Severity   `json:"severity"`
	UserID         string           `json:"user_id"`
	SessionID      string           `json:"session_id"`
	Patterns       []webhookPattern `json:"patterns"`
	Confidence     float64          `json:"confidence"`
	Recommendation string           `json:"recommendation"`
}

type webhookPattern struct {
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// Send posts the alert to the destination's endpoint. Any 2xx status
// counts as delivered; everything else is a failure classified for the
// retry loop.
func (c *WebhookChannel) Send(ctx context.Context, dest *Destination, a *alert.Alert) (*Result, error) {
	result := &Result{
		DestinationName: dest.Name,
		ChannelType:     ChannelWebhook,
	}

	if err := c.Validate(dest); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	if err := c.limiter(dest.Name).Wait(ctx); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeTimeout
		result.IsTransient = true
		return result, nil
	}

	body, err := json.Marshal(buildWebhookPayload(a))
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to marshal payload: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}

	timeout := dest.WebhookTimeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, dest.WebhookURL, bytes.NewReader(body))
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("failed to create request: %v", err)
		result.ErrorCode = ErrorCodeUnknown
		return result, nil
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Argus-Alerting/1.0")
	for key, value := range dest.WebhookHeaders {
		req.Header.Set(key, value)
	}

	resp, err := c.breaker(dest.Name).Execute(func() (*http.Response, error) {
		return c.client.Do(req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			result.ErrorMessage = "webhook circuit open"
			result.ErrorCode = ErrorCodeCircuitOpen
		} else {
			result.ErrorMessage = fmt.Sprintf("failed to post webhook: %v", err)
			result.ErrorCode = classifyTransportError(err)
		}
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}
	defer resp.Body.Close()

	result.ResponseCode = resp.StatusCode
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		respBody = []byte("(failed to read response)")
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		result.Success = true
		return result, nil
	}

	result.ErrorMessage = fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, string(respBody))
	result.ErrorCode = classifyHTTPStatus(resp.StatusCode)
	result.IsTransient = isTransientCode(result.ErrorCode)

	if resp.StatusCode == http.StatusTooManyRequests {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				result.RetryAfter = &seconds
			}
		}
	}
	return result, nil
}

func buildWebhookPayload(a *alert.Alert) webhookPayload {
	patterns := make([]webhookPattern, 0, len(a.Patterns))
	for _, p := range a.Patterns {
		patterns = append(patterns, webhookPattern{
			Type:       string(p.Type),
			Confidence: p.Confidence,
		})
	}
	return webhookPayload{
		Alert: webhookAlert{
			ID:             a.ID,
			Timestamp:      a.Timestamp.UTC(),
			Severity:       a.Severity,
			UserID:         a.UserID,
			SessionID:      a.SessionID,
			Patterns:       patterns,
			Confidence:     a.OverallConfidence,
			Recommendation: string(a.Recommendation),
		},
		Source:  "argus",
		Version: "1",
	}
}

// breaker returns the destination's circuit breaker, creating it on
// first use. The breaker opens after five consecutive failures and
// probes again after 30 seconds.
func (c *WebhookChannel) breaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cb, ok := c.breakers[name]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:    "webhook:" + name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	c.breakers[name] = cb
	return cb
}

// limiter returns the destination's rate limiter, creating it on first
// use. Webhook endpoints are capped at 10 posts per second with a
// small burst.
func (c *WebhookChannel) limiter(name string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[name]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Limit(10), 20)
	c.limiters[name] = l
	return l
}
