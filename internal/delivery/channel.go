// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

// Package delivery sends generated alerts to configured destinations.
//
// Two channel types are implemented:
//   - Webhook: HTTP POST with a JSON alert payload
//   - Email: SMTP with a severity color-coded HTML summary
//
// Both channels report transient versus permanent failures so the
// dispatcher can retry with exponential backoff. Credentials are never
// logged.
package delivery

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/argus-sec/argus/internal/alert"
)

// ChannelType identifies a delivery channel implementation.
type ChannelType string

const (
	ChannelWebhook ChannelType = "webhook"
	ChannelEmail   ChannelType = "email"
)

// Channel delivers one alert to one destination.
type Channel interface {
	// Type returns the channel identifier.
	Type() ChannelType

	// Validate checks the destination configuration for this channel.
	Validate(dest *Destination) error

	// Send delivers the alert. Delivery failures are captured in the
	// result, not returned; the error return is reserved for
	// programming errors.
	Send(ctx context.Context, dest *Destination, a *alert.Alert) (*Result, error)
}

// Destination is one configured delivery target with its severity
// subscription.
type Destination struct {
	Name     string      `koanf:"name" validate:"required"`
	Type     ChannelType `koanf:"type" validate:"required,oneof=webhook email"`
	Enabled  bool        `koanf:"enabled"`

	// Severities the destination subscribes to. Empty means all.
	Severities []alert.Severity `koanf:"severities"`

	// Webhook settings.
	WebhookURL     string            `koanf:"webhook_url" validate:"omitempty,url"`
	WebhookHeaders map[string]string `koanf:"webhook_headers"`
	WebhookTimeout time.Duration     `koanf:"webhook_timeout"`

	// Email settings.
	SMTPHost     string   `koanf:"smtp_host"`
	SMTPPort     int      `koanf:"smtp_port" validate:"omitempty,gte=1,lte=65535"`
	SMTPUser     string   `koanf:"smtp_user"`
	SMTPPassword string   `koanf:"smtp_password"`
	SMTPFrom     string   `koanf:"smtp_from"`
	UseTLS       bool     `koanf:"use_tls"`
	Recipients   []string `koanf:"recipients"`
}

// Accepts reports whether the destination subscribes to the severity.
func (d *Destination) Accepts(sev alert.Severity) bool {
	if !d.Enabled {
		return false
	}
	if len(d.Severities) == 0 {
		return true
	}
	for _, s := range d.Severities {
		if s == sev {
			return true
		}
	}
	return false
}

// Result is the outcome of delivering one alert to one destination.
type Result struct {
	DestinationName string         `json:"destination_name"`
	ChannelType     ChannelType    `json:"channel_type"`
	Success         bool           `json:"success"`
	LatencyMs       int64          `json:"latency_ms"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ErrorCode       string         `json:"error_code,omitempty"`
	IsTransient     bool           `json:"-"`
	RetryAfter      *time.Duration `json:"-"`
	ResponseCode    int            `json:"response_code,omitempty"`
	RetryCount      int            `json:"retry_count"`
}

// Error codes for delivery failures.
const (
	ErrorCodeInvalidConfig    = "INVALID_CONFIG"
	ErrorCodeConnectionFailed = "CONNECTION_FAILED"
	ErrorCodeAuthFailed       = "AUTH_FAILED"
	ErrorCodeRateLimited      = "RATE_LIMITED"
	ErrorCodeCircuitOpen      = "CIRCUIT_OPEN"
	ErrorCodeServerError      = "SERVER_ERROR"
	ErrorCodeClientError      = "CLIENT_ERROR"
	ErrorCodeTimeout          = "TIMEOUT"
	ErrorCodeUnknown          = "UNKNOWN"
)

// isTransientCode reports whether a failed attempt with this code is
// worth retrying.
func isTransientCode(code string) bool {
	switch code {
	case ErrorCodeConnectionFailed, ErrorCodeTimeout, ErrorCodeRateLimited,
		ErrorCodeServerError, ErrorCodeCircuitOpen:
		return true
	default:
		return false
	}
}

// classifyHTTPStatus maps a non-2xx response to an error code.
func classifyHTTPStatus(status int) string {
	switch {
	case status == 429:
		return ErrorCodeRateLimited
	case status == 401 || status == 403:
		return ErrorCodeAuthFailed
	case status >= 500:
		return ErrorCodeServerError
	case status >= 400:
		return ErrorCodeClientError
	default:
		return ErrorCodeUnknown
	}
}

// classifyTransportError maps a transport-level error to an error code.
func classifyTransportError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "context deadline exceeded") || strings.Contains(msg, "timeout"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "connect") || strings.Contains(msg, "no such host"):
		return ErrorCodeConnectionFailed
	default:
		return ErrorCodeUnknown
	}
}

// ValidateWebhookURL checks that a webhook URL is well formed.
func ValidateWebhookURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("webhook URL is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("webhook URL must use http or https scheme")
	}
	if parsed.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// ValidateEmailAddress checks an address has a plausible shape.
func ValidateEmailAddress(email string) error {
	if email == "" {
		return fmt.Errorf("email address is required")
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email address format: %s", email)
	}
	if !strings.Contains(parts[1], ".") {
		return fmt.Errorf("invalid email domain: %s", parts[1])
	}
	return nil
}

// Registry holds the channel implementations by type.
type Registry struct {
	channels map[ChannelType]Channel
}

// NewRegistry creates a registry with the default channels.
func NewRegistry() *Registry {
	r := &Registry{channels: make(map[ChannelType]Channel)}
	r.Register(NewWebhookChannel())
	r.Register(NewEmailChannel())
	return r
}

// Register adds or replaces a channel implementation.
func (r *Registry) Register(ch Channel) {
	r.channels[ch.Type()] = ch
}

// Get retrieves a channel by type.
func (r *Registry) Get(t ChannelType) (Channel, bool) {
	ch, ok := r.channels[t]
	return ch, ok
}
