package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rwahyudi/tether/spanctx"
)

// Client is an MCP client bound to one server endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
	nextID   atomic.Int64
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client (30s timeout).
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a client for the given MCP HTTP endpoint.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Initialize performs the MCP handshake.
func (c *Client) Initialize(ctx context.Context) error {
	var res initializeResult
	err := c.call(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    struct{}{},
		ClientInfo:      clientInfo{Name: "tether", Version: "1"},
	}, &res)
	if err != nil {
		return err
	}
	c.logger.Debug("mcp: initialized", "server", res.ServerInfo.Name, "protocol", res.ProtocolVersion)
	return nil
}

// ListTools returns the tools the server advertises.
func (c *Client) ListTools(ctx context.Context) ([]ToolDef, error) {
	var res listToolsResult
	if err := c.call(ctx, "tools/list", struct{}{}, &res); err != nil {
		return nil, err
	}
	return res.Tools, nil
}

// CallTool invokes a remote tool by name.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (CallToolResult, error) {
	var res CallToolResult
	err := c.call(ctx, "tools/call", callToolParams{Name: name, Arguments: args}, &res)
	return res, err
}

// call performs one JSON-RPC round trip. When the context carries an
// active span (the tool span during agent-driven calls), the request is
// stamped with W3C traceparent/tracestate headers so the server's own
// telemetry joins the trace.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("mcp: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	carrier := map[string]string{}
	spanctx.Inject(ctx, carrier)
	for k, v := range carrier {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("mcp: %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mcp: %s: http %d: %s", method, resp.StatusCode, b)
	}

	var rpcResp response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("mcp: decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("mcp: %s: %w", method, rpcResp.Error)
	}
	if result != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("mcp: unmarshal %s result: %w", method, err)
		}
	}
	return nil
}
