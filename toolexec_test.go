package tether

import (
	"context"
	"errors"
	"testing"
)

func TestToolPanicRecovered(t *testing.T) {
	panicky := &mockTool{name: "t", handler: func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
		panic("kaboom")
	}}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "t", ToolUseID: "tu-1"})},
		{out: textOutput("ok")},
	}}
	a := New("test", p, WithTools(panicky))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("panic escaped the loop: %v", err)
	}
	tr := a.Messages()[2].Content[0].ToolResult
	if tr.Status != ToolStatusError {
		t.Errorf("Status = %q, want error", tr.Status)
	}
	if tr.Content != "tool panicked: kaboom" {
		t.Errorf("Content = %q", tr.Content)
	}
}

func TestToolErrorBecomesErrorResult(t *testing.T) {
	failing := &mockTool{name: "t", handler: func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
		return nil, errors.New("network unreachable")
	}}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "t", ToolUseID: "tu-1"})},
		{out: textOutput("ok")},
	}}
	a := New("test", p, WithTools(failing))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	tr := a.Messages()[2].Content[0].ToolResult
	if tr.Status != ToolStatusError || tr.Content != "network unreachable" {
		t.Errorf("result = %+v", tr)
	}
}

func TestToolNilResult(t *testing.T) {
	silent := &mockTool{name: "quiet", handler: func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
		return nil, nil
	}}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "quiet", ToolUseID: "tu-1"})},
		{out: textOutput("ok")},
	}}
	a := New("test", p, WithTools(silent))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	tr := a.Messages()[2].Content[0].ToolResult
	if tr.Status != ToolStatusError {
		t.Errorf("Status = %q, want error", tr.Status)
	}
	if tr.Content != "Tool 'quiet' did not return a result" {
		t.Errorf("Content = %q", tr.Content)
	}
}

func TestToolResultDefaultsFilled(t *testing.T) {
	bare := &mockTool{name: "t", handler: func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
		// No ToolUseID, no Status: the loop fills both.
		return &ToolResult{Content: "payload"}, nil
	}}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "t", ToolUseID: "tu-9"})},
		{out: textOutput("ok")},
	}}
	a := New("test", p, WithTools(bare))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	tr := a.Messages()[2].Content[0].ToolResult
	if tr.ToolUseID != "tu-9" {
		t.Errorf("ToolUseID = %q, want tu-9", tr.ToolUseID)
	}
	if tr.Status != ToolStatusSuccess {
		t.Errorf("Status = %q, want success", tr.Status)
	}
}

func TestBeforeToolCallRejection(t *testing.T) {
	log := &execLog{}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "t", ToolUseID: "tu-1"})},
		{out: textOutput("ok")},
	}}
	h := &recordingHook{beforeToolCallErr: errors.New("forbidden")}
	a := New("test", p, WithTools(&mockTool{name: "t", log: log}), WithHooks(h))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("per-tool rejection must not abort the invocation: %v", err)
	}
	if len(log.all()) != 0 {
		t.Error("tool ran despite BeforeToolCall rejection")
	}
	tr := a.Messages()[2].Content[0].ToolResult
	if tr.Status != ToolStatusError {
		t.Errorf("Status = %q, want error", tr.Status)
	}
	if tr.Content != "tool hook rejected execution: forbidden" {
		t.Errorf("Content = %q", tr.Content)
	}
}

func TestToolContextCarriesRequest(t *testing.T) {
	var seen *ToolContext
	inspect := &mockTool{name: "t", handler: func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
		seen = tc
		return &ToolResult{Status: ToolStatusSuccess, Content: "ok"}, nil
	}}
	p := &mockProvider{script: []scriptStep{
		{out: toolUseOutput(ToolUse{Name: "t", ToolUseID: "tu-1"})},
		{out: textOutput("ok")},
	}}
	a := New("test", p, WithTools(inspect))

	if _, err := a.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if seen == nil {
		t.Fatal("tool never ran")
	}
	if seen.ToolUse.ToolUseID != "tu-1" || seen.Agent != a {
		t.Errorf("ToolContext = %+v", seen)
	}
	// No tracing configured: Tracing is nil rather than zero-valued.
	if seen.Tracing != nil {
		t.Errorf("Tracing = %+v, want nil without an active span", seen.Tracing)
	}
}
