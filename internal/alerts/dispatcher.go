// Invigil - Contest Proctoring and Plagiarism Detection Engine
// Copyright 2026 The Invigil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/invigil/invigil

// Package alerts delivers alert payloads to configured outbound channels
// (webhook, SMTP email) and reports per-channel results. Delivery is
// best-effort: a failed channel never fails the request that triggered it.
package alerts

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/invigil/invigil/internal/config"
	"github.com/invigil/invigil/internal/logging"
	"github.com/invigil/invigil/internal/metrics"
	"github.com/invigil/invigil/internal/models"
)

// ChannelResult is one channel's delivery outcome.
type ChannelResult struct {
	Channel string `json:"channel"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Channel delivers one alert.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert *models.Alert) error
}

// Dispatcher fans an alert out to every configured channel.
type Dispatcher struct {
	channels []Channel
}

// NewDispatcher builds the dispatcher from the alert configuration; only
// configured channels are attached.
func NewDispatcher(cfg *config.AlertsConfig) *Dispatcher {
	d := &Dispatcher{}
	if cfg.WebhookEnabled() {
		d.channels = append(d.channels, NewWebhookChannel(cfg.WebhookURL, cfg.WebhookTimeout))
	}
	if cfg.EmailEnabled() {
		d.channels = append(d.channels, NewEmailChannel(cfg))
	}
	return d
}

// HasChannels reports whether any outbound channel is configured.
func (d *Dispatcher) HasChannels() bool {
	return len(d.channels) > 0
}

// Dispatch attempts delivery on every channel and returns per-channel
// results in configuration order.
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert) []ChannelResult {
	results := make([]ChannelResult, 0, len(d.channels))
	for _, ch := range d.channels {
		result := ChannelResult{Channel: ch.Name(), Success: true}
		if err := ch.Deliver(ctx, alert); err != nil {
			result.Success = false
			result.Error = err.Error()
			metrics.AlertDeliveries.WithLabelValues(ch.Name(), "failure").Inc()
			logging.Warn().Err(err).Str("channel", ch.Name()).Msg("alert delivery failed")
		} else {
			metrics.AlertDeliveries.WithLabelValues(ch.Name(), "success").Inc()
		}
		results = append(results, result)
	}
	return results
}

// WebhookChannel POSTs the alert as JSON to a configured endpoint.
type WebhookChannel struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// webhookPayload is the JSON body sent to the webhook endpoint.
type webhookPayload struct {
	Alert     *models.Alert `json:"alert"`
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	Source    string        `json:"source"`
}

// NewWebhookChannel creates the webhook channel.
func NewWebhookChannel(url string, timeout time.Duration) *WebhookChannel {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookChannel{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Name implements Channel.
func (w *WebhookChannel) Name() string { return "webhook" }

// Deliver implements Channel.
func (w *WebhookChannel) Deliver(ctx context.Context, alert *models.Alert) error {
	body, err := json.Marshal(webhookPayload{
		Alert:     alert,
		EventType: "proctoring_alert",
		Timestamp: time.Now().UTC(),
		Source:    "invigil",
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailChannel sends the alert over SMTP.
type EmailChannel struct {
	host     string
	port     int
	user     string
	password string
	from     string
	to       []string

	// send is indirected for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates the SMTP channel.
func NewEmailChannel(cfg *config.AlertsConfig) *EmailChannel {
	return &EmailChannel{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		password: cfg.SMTPPassword,
		from:     cfg.SMTPFrom,
		to:       splitRecipients(cfg.SMTPTo),
		send:     smtp.SendMail,
	}
}

func splitRecipients(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

// Name implements Channel.
func (e *EmailChannel) Name() string { return "email" }

// Deliver implements Channel.
func (e *EmailChannel) Deliver(_ context.Context, alert *models.Alert) error {
	subject := fmt.Sprintf("[invigil] %s alert for %s", alert.Level, alert.MachineID)

	var body strings.Builder
	fmt.Fprintf(&body, "Participant: %s\r\n", alert.MachineID)
	if alert.ExternalAccountName != "" {
		fmt.Fprintf(&body, "Account: %s\r\n", alert.ExternalAccountName)
	}
	fmt.Fprintf(&body, "Level: %s\r\nScore: %.3f\r\nTime: %s\r\n\r\nReasons:\r\n",
		alert.Level, alert.Score, alert.Timestamp.UTC().Format(time.RFC3339))
	for _, reason := range alert.Reasons {
		fmt.Fprintf(&body, "  - %s\r\n", reason)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		e.from, strings.Join(e.to, ", "), subject, body.String())

	var auth smtp.Auth
	if e.user != "" {
		auth = smtp.PlainAuth("", e.user, e.password, e.host)
	}

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	if err := e.send(addr, auth, e.from, e.to, []byte(msg)); err != nil {
		return fmt.Errorf("smtp delivery failed: %w", err)
	}
	return nil
}
