package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tether "github.com/rwahyudi/tether"
)

// --- buildBody ---

func TestBuildBodySystemPromptFirst(t *testing.T) {
	msgs := []tether.Message{tether.TextMessage(tether.RoleUser, "hi")}
	req := buildBody(msgs, tether.ModelOptions{SystemPrompt: "be nice"}, "m")

	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "be nice" {
		t.Errorf("first message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" {
		t.Errorf("second message = %+v", req.Messages[1])
	}
	if !req.Stream || req.StreamOptions == nil || !req.StreamOptions.IncludeUsage {
		t.Error("streaming options not set")
	}
}

func TestBuildBodyToolUseBecomesToolCalls(t *testing.T) {
	msgs := []tether.Message{
		{Role: tether.RoleAssistant, Content: []tether.ContentBlock{
			tether.TextBlock("checking"),
			tether.ToolUseBlock(tether.ToolUse{Name: "fetch", ToolUseID: "call_1", Input: json.RawMessage(`{"url":"x"}`)}),
		}},
	}
	req := buildBody(msgs, tether.ModelOptions{}, "m")

	m := req.Messages[0]
	if m.Role != "assistant" || m.Content != "checking" {
		t.Errorf("assistant message = %+v", m)
	}
	if len(m.ToolCalls) != 1 {
		t.Fatalf("tool_calls = %d, want 1", len(m.ToolCalls))
	}
	tc := m.ToolCalls[0]
	if tc.ID != "call_1" || tc.Type != "function" || tc.Function.Name != "fetch" || tc.Function.Arguments != `{"url":"x"}` {
		t.Errorf("tool_call = %+v", tc)
	}
}

func TestBuildBodyToolResultsBecomeToolMessages(t *testing.T) {
	msgs := []tether.Message{
		{Role: tether.RoleUser, Content: []tether.ContentBlock{
			tether.ToolResultBlock(tether.ToolResult{ToolUseID: "call_1", Status: tether.ToolStatusSuccess, Content: "page text"}),
			tether.ToolResultBlock(tether.ToolResult{ToolUseID: "call_2", Status: tether.ToolStatusError, Content: "nope"}),
		}},
	}
	req := buildBody(msgs, tether.ModelOptions{}, "m")

	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "tool" || req.Messages[0].ToolCallID != "call_1" || req.Messages[0].Content != "page text" {
		t.Errorf("first tool message = %+v", req.Messages[0])
	}
	if req.Messages[1].ToolCallID != "call_2" {
		t.Errorf("second tool message = %+v", req.Messages[1])
	}
}

func TestBuildBodyToolSpecs(t *testing.T) {
	specs := []tether.ToolSpec{{Name: "fetch", Description: "fetch a url", InputSchema: json.RawMessage(`{"type":"object"}`)}}
	req := buildBody(nil, tether.ModelOptions{ToolSpecs: specs}, "m")

	if len(req.Tools) != 1 {
		t.Fatalf("tools = %d, want 1", len(req.Tools))
	}
	if req.Tools[0].Type != "function" || req.Tools[0].Function.Name != "fetch" {
		t.Errorf("tool = %+v", req.Tools[0])
	}
}

// --- streamSSE ---

func TestStreamSSETextDeltas(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
		`data: {"choices":[{"delta":{"content":"lo"}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`data: {"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
		`data: [DONE]`,
		``,
	}, "\n")

	ch := make(chan tether.Event, 8)
	out, err := streamSSE(context.Background(), strings.NewReader(sse), ch)
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if out.Message.Text() != "Hello" {
		t.Errorf("text = %q", out.Message.Text())
	}
	if out.StopReason != tether.StopEndTurn {
		t.Errorf("StopReason = %q", out.StopReason)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", out.Usage)
	}

	close(ch)
	var deltas []string
	for ev := range ch {
		if ev.Type == tether.EventModelDelta {
			deltas = append(deltas, ev.Content)
		}
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v", deltas)
	}
}

func TestStreamSSEToolCallAggregation(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_9","function":{"name":"fetch","arguments":""}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"url\":"}}]}}]}`,
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"https://x\"}"}}]}}]}`,
		`data: {"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		``,
	}, "\n")

	out, err := streamSSE(context.Background(), strings.NewReader(sse), nil)
	if err != nil {
		t.Fatalf("streamSSE: %v", err)
	}
	if out.StopReason != tether.StopToolUse {
		t.Errorf("StopReason = %q", out.StopReason)
	}
	uses := out.Message.ToolUses()
	if len(uses) != 1 {
		t.Fatalf("tool uses = %d, want 1", len(uses))
	}
	if uses[0].Name != "fetch" || uses[0].ToolUseID != "call_9" {
		t.Errorf("use = %+v", uses[0])
	}
	if string(uses[0].Input) != `{"url":"https://x"}` {
		t.Errorf("input = %s", uses[0].Input)
	}
}

func TestStreamSSEMissingToolCallID(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"name":"t","arguments":"{}"}}]},"finish_reason":"tool_calls"}]}`,
		`data: [DONE]`,
		``,
	}, "\n")

	out, err := streamSSE(context.Background(), strings.NewReader(sse), nil)
	if err != nil {
		t.Fatal(err)
	}
	uses := out.Message.ToolUses()
	if len(uses) != 1 || uses[0].ToolUseID == "" {
		t.Errorf("expect synthesized id, got %+v", uses)
	}
}

func TestStreamSSESkipsMalformedChunks(t *testing.T) {
	sse := strings.Join([]string{
		`data: this is not json`,
		`data: {"choices":[{"delta":{"content":"ok"},"finish_reason":"stop"}]}`,
		`data: [DONE]`,
		``,
	}, "\n")

	out, err := streamSSE(context.Background(), strings.NewReader(sse), nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Message.Text() != "ok" {
		t.Errorf("text = %q", out.Message.Text())
	}
}

func TestMapFinishReason(t *testing.T) {
	cases := []struct {
		reason   string
		hasTools bool
		want     tether.StopReason
	}{
		{"stop", false, tether.StopEndTurn},
		{"length", false, tether.StopMaxTokens},
		{"tool_calls", true, tether.StopToolUse},
		{"function_call", true, tether.StopToolUse},
		{"", true, tether.StopToolUse},
		{"", false, tether.StopEndTurn},
		{"content_filter", false, tether.StopEndTurn},
	}
	for _, c := range cases {
		if got := mapFinishReason(c.reason, c.hasTools); got != c.want {
			t.Errorf("mapFinishReason(%q, %v) = %q, want %q", c.reason, c.hasTools, got, c.want)
		}
	}
}

// --- Provider end to end ---

func TestProviderStreamAggregated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("auth = %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if req.Model != "test-model" || !req.Stream {
			t.Errorf("request = %+v", req)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hey\"},\"finish_reason\":\"stop\"}]}\n"))
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer srv.Close()

	p := New(srv.URL, "sk-test", "test-model")
	out, err := p.StreamAggregated(context.Background(), []tether.Message{tether.TextMessage(tether.RoleUser, "hi")}, tether.ModelOptions{}, nil)
	if err != nil {
		t.Fatalf("StreamAggregated: %v", err)
	}
	if out.Message.Text() != "hey" {
		t.Errorf("text = %q", out.Message.Text())
	}
	if out.Metrics == nil {
		t.Error("latency metrics not recorded")
	}
}

func TestProviderHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New(srv.URL, "", "m")
	_, err := p.StreamAggregated(context.Background(), nil, tether.ModelOptions{}, nil)
	httpErr, ok := err.(*tether.HTTPError)
	if !ok {
		t.Fatalf("err = %T(%v), want *tether.HTTPError", err, err)
	}
	if httpErr.Status != http.StatusTooManyRequests {
		t.Errorf("Status = %d", httpErr.Status)
	}
	if httpErr.RetryAfter.Seconds() != 7 {
		t.Errorf("RetryAfter = %v, want 7s", httpErr.RetryAfter)
	}
}
