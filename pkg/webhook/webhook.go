// Package webhook posts run reports to HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/oceanlab/flowmow/pkg/config"
	"github.com/oceanlab/flowmow/pkg/output"
)

// maxResponseBody caps how much of an endpoint's reply is kept.
const maxResponseBody = 1 << 20

// Payload is the JSON document posted to an endpoint.
type Payload struct {
	// Attention is set when a source was unproductive or failed a sampling
	// check.
	Attention bool `json:"attention"`

	// Unproductive names the sources that produced no records, as
	// "dive<N>/<instrument>".
	Unproductive []string `json:"unproductive,omitempty"`

	Report *output.Report `json:"report"`
}

// NewPayload wraps report for delivery.
func NewPayload(report *output.Report) *Payload {
	p := &Payload{Report: report}
	for _, s := range report.Unproductive() {
		p.Unproductive = append(p.Unproductive, fmt.Sprintf("dive%d/%s", s.Dive, s.Instrument))
	}
	p.Attention = report.HasIssues() || len(p.Unproductive) > 0
	return p
}

// ShouldFire reports whether an endpoint with trigger wants payload.
func ShouldFire(trigger config.WebhookTrigger, payload *Payload) bool {
	switch trigger {
	case config.WebhookTriggerAlways:
		return true
	case config.WebhookTriggerNever:
		return false
	default:
		return payload.Attention
	}
}

// Response contains the result of one delivery.
type Response struct {
	Name       string
	StatusCode int
	Body       string
	Duration   time.Duration
	Error      error
}

// Success returns true if the endpoint accepted the payload (2xx status).
func (r *Response) Success() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Client delivers payloads.
type Client struct {
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithClock sets the clock used to time deliveries.
func WithClock(c clockwork.Clock) Option {
	return func(cl *Client) { cl.clock = c }
}

// WithLogger sets the logger that records each delivery.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a webhook client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{},
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify delivers report to every endpoint whose trigger fires. Failures
// are returned in the responses and logged; they never stop the others.
func (c *Client) Notify(ctx context.Context, hooks []config.WebhookConfig, report *output.Report) []*Response {
	payload := NewPayload(report)

	var out []*Response
	for _, wh := range hooks {
		if !ShouldFire(wh.Trigger, payload) {
			continue
		}

		resp := c.Send(ctx, wh, payload)
		if resp.Success() {
			c.logger.Infow("webhook sent", "webhook", resp.Name, "status", resp.StatusCode, "duration", resp.Duration)
		} else {
			c.logger.Warnw("webhook failed", "webhook", resp.Name, "error", resp.Error)
		}
		out = append(out, resp)
	}
	return out
}

// Send posts payload to one endpoint.
func (c *Client) Send(ctx context.Context, wh config.WebhookConfig, payload *Payload) *Response {
	start := c.clock.Now()
	resp := &Response{Name: wh.Name}
	if resp.Name == "" {
		resp.Name = wh.URL
	}
	fail := func(err error) *Response {
		resp.Error = err
		resp.Duration = c.clock.Since(start)
		return resp
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fail(fmt.Errorf("failed to marshal report: %w", err))
	}

	timeout := wh.Timeout
	if timeout <= 0 {
		timeout = config.DefaultWebhookTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flowmow-webhook")
	if wh.Token != "" {
		req.Header.Set("Authorization", "Bearer "+wh.Token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer httpResp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return fail(fmt.Errorf("failed to read response: %w", err))
	}

	resp.StatusCode = httpResp.StatusCode
	resp.Body = string(reply)
	resp.Duration = c.clock.Since(start)
	if resp.StatusCode >= 400 {
		resp.Error = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp
}
