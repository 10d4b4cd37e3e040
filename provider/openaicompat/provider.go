package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	tether "github.com/rwahyudi/tether"
)

// Provider implements tether.ModelProvider against an OpenAI-compatible
// chat completions endpoint.
type Provider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient replaces the default HTTP client (120s timeout).
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *Provider) { p.client = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// New creates a Provider. baseURL is the API root, e.g.
// "https://api.openai.com/v1".
func New(baseURL, apiKey, model string, opts ...ProviderOption) *Provider {
	p := &Provider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// StreamAggregated issues one streamed chat completion, forwarding text
// deltas onto ch and returning the aggregated output.
func (p *Provider) StreamAggregated(ctx context.Context, messages []tether.Message, opts tether.ModelOptions, ch chan<- tether.Event) (*tether.ModelOutput, error) {
	body := buildBody(messages, opts, p.model)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &tether.HTTPError{
			Status:     resp.StatusCode,
			Body:       string(b),
			RetryAfter: tether.ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	out, err := streamSSE(ctx, resp.Body, ch)
	if err != nil {
		return nil, err
	}
	out.Metrics = &tether.Metrics{LatencyMs: time.Since(start).Milliseconds()}
	p.logger.Debug("model call completed",
		"model", p.model, "stop_reason", out.StopReason, "latency_ms", out.Metrics.LatencyMs)
	return out, nil
}

var _ tether.ModelProvider = (*Provider)(nil)
