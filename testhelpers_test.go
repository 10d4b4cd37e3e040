package tether

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// --- Provider mocks ---

// scriptStep is one scripted model call outcome.
type scriptStep struct {
	out    *ModelOutput
	err    error
	deltas []string // forwarded as model-delta events before returning
}

// mockProvider replays a fixed script of model call outcomes and records
// the conversation view it was handed on each call.
type mockProvider struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int
	views  [][]Message
	opts   []ModelOptions
	// block, when non-nil, is received from before each call returns.
	block chan struct{}
}

func (p *mockProvider) StreamAggregated(ctx context.Context, messages []Message, opts ModelOptions, ch chan<- Event) (*ModelOutput, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	view := make([]Message, len(messages))
	copy(view, messages)
	p.views = append(p.views, view)
	p.opts = append(p.opts, opts)
	block := p.block
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if i >= len(p.script) {
		return nil, fmt.Errorf("mockProvider: unexpected call %d", i)
	}
	step := p.script[i]
	for _, d := range step.deltas {
		emit(ctx, ch, Event{Type: EventModelDelta, Content: d})
	}
	return step.out, step.err
}

func (p *mockProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func textOutput(text string) *ModelOutput {
	return &ModelOutput{
		Message:    TextMessage(RoleAssistant, text),
		StopReason: StopEndTurn,
		Usage:      &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

func toolUseOutput(uses ...ToolUse) *ModelOutput {
	blocks := make([]ContentBlock, 0, len(uses))
	for _, tu := range uses {
		blocks = append(blocks, ToolUseBlock(tu))
	}
	return &ModelOutput{
		Message:    Message{Role: RoleAssistant, Content: blocks},
		StopReason: StopToolUse,
		Usage:      &Usage{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}
}

// --- Tool mocks ---

// mockTool runs a configurable handler and records executions on a
// shared log when one is wired.
type mockTool struct {
	name    string
	handler func(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error)
	log     *execLog
}

func (t *mockTool) Spec() ToolSpec {
	return ToolSpec{Name: t.name, Description: "mock", InputSchema: json.RawMessage(`{"type":"object"}`)}
}

func (t *mockTool) Stream(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error) {
	if t.log != nil {
		t.log.record(t.name)
	}
	if t.handler != nil {
		return t.handler(ctx, tc, ch)
	}
	return &ToolResult{Status: ToolStatusSuccess, Content: t.name + " ok"}, nil
}

type execLog struct {
	mu    sync.Mutex
	names []string
}

func (l *execLog) record(name string) {
	l.mu.Lock()
	l.names = append(l.names, name)
	l.mu.Unlock()
}

func (l *execLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.names))
	copy(out, l.names)
	return out
}

// --- Hook mocks ---

// recordingHook implements every hook interface and records dispatch
// order as event labels.
type recordingHook struct {
	mu     sync.Mutex
	events []string

	beforeInvocationErr error
	beforeModelCallErr  error
	beforeToolsErr      error
	beforeToolCallErr   error

	// retryOn requests a retry for the first n failed model calls.
	retryOn int
	retried int

	lastAfterInvocation *AfterInvocationEvent
}

func (h *recordingHook) record(label string) {
	h.mu.Lock()
	h.events = append(h.events, label)
	h.mu.Unlock()
}

func (h *recordingHook) all() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	copy(out, h.events)
	return out
}

func (h *recordingHook) BeforeInvocation(ctx context.Context, ev *BeforeInvocationEvent) error {
	h.record("before_invocation")
	return h.beforeInvocationErr
}

func (h *recordingHook) AfterInvocation(ctx context.Context, ev *AfterInvocationEvent) error {
	h.record("after_invocation")
	h.mu.Lock()
	h.lastAfterInvocation = ev
	h.mu.Unlock()
	return nil
}

func (h *recordingHook) MessageAdded(ctx context.Context, ev *MessageAddedEvent) error {
	h.record("message_added:" + string(ev.Message.Role))
	return nil
}

func (h *recordingHook) BeforeModelCall(ctx context.Context, ev *BeforeModelCallEvent) error {
	h.record("before_model_call:" + ev.CycleID)
	return h.beforeModelCallErr
}

func (h *recordingHook) AfterModelCall(ctx context.Context, ev *AfterModelCallEvent) error {
	h.record("after_model_call:" + ev.CycleID)
	if ev.Err != nil && h.retried < h.retryOn {
		h.retried++
		ev.Retry = true
	}
	return nil
}

func (h *recordingHook) BeforeTools(ctx context.Context, ev *BeforeToolsEvent) error {
	h.record("before_tools")
	return h.beforeToolsErr
}

func (h *recordingHook) AfterTools(ctx context.Context, ev *AfterToolsEvent) error {
	h.record("after_tools")
	return nil
}

func (h *recordingHook) BeforeToolCall(ctx context.Context, ev *BeforeToolCallEvent) error {
	h.record("before_tool_call:" + ev.ToolUse.Name)
	return h.beforeToolCallErr
}

func (h *recordingHook) AfterToolCall(ctx context.Context, ev *AfterToolCallEvent) error {
	h.record("after_tool_call:" + ev.ToolUse.Name)
	return nil
}

// messageOnlyHook implements only MessageAdded.
type messageOnlyHook struct {
	mu    sync.Mutex
	count int
	err   error
}

func (h *messageOnlyHook) MessageAdded(ctx context.Context, ev *MessageAddedEvent) error {
	h.mu.Lock()
	h.count++
	h.mu.Unlock()
	return h.err
}

// drain consumes a stream channel on a goroutine and returns the
// collected events after done is called.
func drain(ch chan Event) (done func() []Event) {
	var events []Event
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for ev := range ch {
			events = append(events, ev)
		}
	}()
	return func() []Event {
		close(ch)
		<-finished
		return events
	}
}
