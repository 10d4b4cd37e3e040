// Package fetch provides a builtin tool that downloads a URL and
// extracts its readable text content.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"golang.org/x/text/unicode/norm"

	tether "github.com/rwahyudi/tether"
)

// maxContentLen caps the extracted text returned to the model.
const maxContentLen = 8000

// Tool fetches URLs and extracts readable content.
type Tool struct {
	client *http.Client
}

// New creates a fetch tool with a 15-second timeout.
func New() *Tool {
	return &Tool{
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *Tool) Spec() tether.ToolSpec {
	return tether.ToolSpec{
		Name:        "fetch",
		Description: "Fetch a URL and extract its readable text content. Use for reading web pages, articles, documentation.",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`),
	}
}

func (t *Tool) Stream(ctx context.Context, tc *tether.ToolContext, ch chan<- tether.Event) (*tether.ToolResult, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(tc.ToolUse.Input, &params); err != nil {
		return &tether.ToolResult{Status: tether.ToolStatusError, Content: "invalid args: " + err.Error()}, nil
	}

	if ch != nil {
		select {
		case ch <- tether.Event{Content: "fetching " + params.URL}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	content, err := t.Fetch(ctx, params.URL)
	if err != nil {
		return &tether.ToolResult{Status: tether.ToolStatusError, Content: err.Error()}, nil
	}

	if len(content) > maxContentLen {
		content = content[:maxContentLen] + "\n... (truncated)"
	}

	return &tether.ToolResult{Status: tether.ToolStatusSuccess, Content: content}, nil
}

// Fetch downloads a URL and extracts readable, NFC-normalized text.
// Exported for use outside the tool contract.
func (t *Tool) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; TetherBot/1.0)")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1MB limit
	if err != nil {
		return "", fmt.Errorf("read error: %w", err)
	}

	parsedURL, _ := url.Parse(rawURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil || article.TextContent == "" {
		return "", fmt.Errorf("no readable content at %s", rawURL)
	}
	return norm.NFC.String(strings.TrimSpace(article.TextContent)), nil
}

var _ tether.Tool = (*Tool)(nil)
