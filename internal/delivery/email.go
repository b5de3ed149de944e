// Argus - Security Decision Monitoring and Alerting
// Copyright 2026 The Argus Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-sec/argus

package delivery

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/argus-sec/argus/internal/alert"
)

// EmailChannel delivers alerts as severity color-coded HTML email over
// SMTP.
type EmailChannel struct {
	dialTimeout time.Duration
}

// NewEmailChannel creates an email delivery channel.
func NewEmailChannel() *EmailChannel {
	return &EmailChannel{dialTimeout: 30 * time.Second}
}

// Type returns the channel identifier.
func (c *EmailChannel) Type() ChannelType {
	return ChannelEmail
}

// Validate checks the SMTP destination configuration.
func (c *EmailChannel) Validate(dest *Destination) error {
	if dest == nil {
		return fmt.Errorf("email destination is required")
	}
	if dest.SMTPHost == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if dest.SMTPPort <= 0 || dest.SMTPPort > 65535 {
		return fmt.Errorf("invalid SMTP port: %d", dest.SMTPPort)
	}
	if dest.SMTPFrom == "" {
		return fmt.Errorf("SMTP from address is required")
	}
	if err := ValidateEmailAddress(dest.SMTPFrom); err != nil {
		return fmt.Errorf("invalid SMTP from address: %w", err)
	}
	if len(dest.Recipients) == 0 {
		return fmt.Errorf("at least one recipient is required")
	}
	for _, to := range dest.Recipients {
		if err := ValidateEmailAddress(to); err != nil {
			return err
		}
	}
	return nil
}

// Send delivers the alert to all of the destination's recipients in a
// single SMTP transaction.
func (c *EmailChannel) Send(ctx context.Context, dest *Destination, a *alert.Alert) (*Result, error) {
	result := &Result{
		DestinationName: dest.Name,
		ChannelType:     ChannelEmail,
	}

	if err := c.Validate(dest); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = ErrorCodeInvalidConfig
		return result, nil
	}

	msg := buildEmailMessage(dest, a)
	if err := c.sendSMTP(ctx, dest, msg); err != nil {
		result.ErrorMessage = err.Error()
		result.ErrorCode = classifyEmailError(err)
		result.IsTransient = isTransientCode(result.ErrorCode)
		return result, nil
	}

	result.Success = true
	return result, nil
}

// severityColor returns the accent color used in the HTML summary.
func severityColor(sev alert.Severity) string {
	switch sev {
	case alert.SeverityCritical:
		return "#d32f2f"
	case alert.SeverityHigh:
		return "#f57c00"
	case alert.SeverityMedium:
		return "#fbc02d"
	default:
		return "#388e3c"
	}
}

// emailSubject builds the subject line from the severity and the
// primary (first, highest-priority) pattern.
func emailSubject(a *alert.Alert) string {
	primary := "anomalous activity"
	if len(a.Patterns) > 0 {
		primary = string(a.Patterns[0].Type)
	}
	return fmt.Sprintf("[argus] %s alert: %s", strings.ToUpper(string(a.Severity)), primary)
}

func buildEmailMessage(dest *Destination, a *alert.Alert) string {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: Argus <%s>\r\n", dest.SMTPFrom))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(dest.Recipients, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", emailSubject(a)))
	msg.WriteString(fmt.Sprintf("X-Argus-Alert-ID: %s\r\n", a.ID))
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(buildEmailHTML(a))
	return msg.String()
}

func buildEmailHTML(a *alert.Alert) string {
	var b strings.Builder
	color := severityColor(a.Severity)

	b.WriteString("<html><body style=\"font-family:sans-serif\">")
	b.WriteString(fmt.Sprintf(
		"<h2 style=\"color:%s\">%s security alert</h2>",
		color, strings.ToUpper(string(a.Severity))))
	b.WriteString("<table cellpadding=\"4\">")
	b.WriteString(fmt.Sprintf("<tr><td><b>Alert</b></td><td>%s</td></tr>", a.ID))
	b.WriteString(fmt.Sprintf("<tr><td><b>Time</b></td><td>%s</td></tr>", a.Timestamp.UTC().Format(time.RFC3339)))
	b.WriteString(fmt.Sprintf("<tr><td><b>User</b></td><td>%s</td></tr>", a.UserID))
	b.WriteString(fmt.Sprintf("<tr><td><b>Session</b></td><td>%s</td></tr>", a.SessionID))
	b.WriteString(fmt.Sprintf("<tr><td><b>Confidence</b></td><td>%.2f</td></tr>", a.OverallConfidence))
	b.WriteString(fmt.Sprintf("<tr><td><b>Recommendation</b></td><td>%s</td></tr>", a.Recommendation))
	b.WriteString("</table>")

	if len(a.Patterns) > 0 {
		b.WriteString("<h3>Detected patterns</h3><ul>")
		for _, p := range a.Patterns {
			b.WriteString(fmt.Sprintf("<li>%s (confidence %.2f)</li>", p.Type, p.Confidence))
		}
		b.WriteString("</ul>")
	}

	if a.Context.Endpoint != "" || a.Context.RequestCount > 0 {
		b.WriteString("<h3>Context</h3><ul>")
		if a.Context.Endpoint != "" {
			b.WriteString(fmt.Sprintf("<li>Endpoint: %s</li>", a.Context.Endpoint))
		}
		if a.Context.RequestCount > 0 {
			b.WriteString(fmt.Sprintf("<li>Requests: %d (blocked %d)</li>", a.Context.RequestCount, a.Context.BlockedCount))
		}
		if a.Context.RemoteAddr != "" {
			b.WriteString(fmt.Sprintf("<li>Origin: %s</li>", a.Context.RemoteAddr))
		}
		b.WriteString("</ul>")
	}

	b.WriteString("</body></html>")
	return b.String()
}

func (c *EmailChannel) sendSMTP(ctx context.Context, dest *Destination, msg string) error {
	addr := fmt.Sprintf("%s:%d", dest.SMTPHost, dest.SMTPPort)

	dialer := &net.Dialer{Timeout: c.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, dest.SMTPHost)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if dest.UseTLS {
		tlsConfig := &tls.Config{
			ServerName: dest.SMTPHost,
			MinVersion: tls.VersionTLS12,
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	if dest.SMTPUser != "" && dest.SMTPPassword != "" {
		auth := smtp.PlainAuth("", dest.SMTPUser, dest.SMTPPassword, dest.SMTPHost)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(dest.SMTPFrom); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	for _, to := range dest.Recipients {
		if err := client.Rcpt(to); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}

	// A failed QUIT after a successful DATA still counts as delivered.
	_ = client.Quit()
	return nil
}

func classifyEmailError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "authentication") || strings.Contains(msg, "auth"):
		return ErrorCodeAuthFailed
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return ErrorCodeTimeout
	case strings.Contains(msg, "connection") || strings.Contains(msg, "connect"):
		return ErrorCodeConnectionFailed
	case strings.Contains(msg, "rate") || strings.Contains(msg, "limit"):
		return ErrorCodeRateLimited
	default:
		return ErrorCodeUnknown
	}
}
