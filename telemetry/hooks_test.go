package telemetry

import (
	"context"
	"errors"
	"testing"

	tether "github.com/rwahyudi/tether"
	"github.com/rwahyudi/tether/spanctx"
)

// captureTracer records span calls without touching OTEL or the context
// stack. It implements every capability interface.
type captureTracer struct {
	calls []string
}

func (c *captureTracer) StartAgentSpan(ctx context.Context, agentName, systemPrompt string, messages []tether.Message) *SpanHandle {
	c.calls = append(c.calls, "start_agent")
	return &SpanHandle{}
}

func (c *captureTracer) EndAgentSpan(h *SpanHandle, result *tether.Result, usage tether.AccumulatedUsage, err error) {
	c.calls = append(c.calls, "end_agent")
}

func (c *captureTracer) StartCycleSpan(ctx context.Context, cycleID string) *SpanHandle {
	c.calls = append(c.calls, "start_cycle:"+cycleID)
	return &SpanHandle{}
}

func (c *captureTracer) EndCycleSpan(h *SpanHandle, err error) {
	c.calls = append(c.calls, "end_cycle")
}

func (c *captureTracer) StartModelSpan(ctx context.Context, messages []tether.Message) *SpanHandle {
	c.calls = append(c.calls, "start_model")
	return &SpanHandle{}
}

func (c *captureTracer) EndModelSpan(h *SpanHandle, out *tether.ModelOutput, err error) {
	c.calls = append(c.calls, "end_model")
}

func (c *captureTracer) StartToolSpan(ctx context.Context, tu tether.ToolUse) *SpanHandle {
	c.calls = append(c.calls, "start_tool:"+tu.ToolUseID)
	return &SpanHandle{}
}

func (c *captureTracer) EndToolSpan(h *SpanHandle, res *tether.ToolResult, err error) {
	c.calls = append(c.calls, "end_tool")
}

// modelOnlyTracer implements just the model span capability pair.
type modelOnlyTracer struct {
	starts, ends int
}

func (m *modelOnlyTracer) StartModelSpan(ctx context.Context, messages []tether.Message) *SpanHandle {
	m.starts++
	return &SpanHandle{}
}

func (m *modelOnlyTracer) EndModelSpan(h *SpanHandle, out *tether.ModelOutput, err error) {
	m.ends++
}

// scriptedProvider replays model outputs for integration tests.
type scriptedProvider struct {
	outputs []*tether.ModelOutput
	calls   int
}

func (p *scriptedProvider) StreamAggregated(ctx context.Context, messages []tether.Message, opts tether.ModelOptions, ch chan<- tether.Event) (*tether.ModelOutput, error) {
	out := p.outputs[p.calls]
	p.calls++
	return out, nil
}

// echoTool returns a fixed success result.
type echoTool struct{ name string }

func (t *echoTool) Spec() tether.ToolSpec {
	return tether.ToolSpec{Name: t.name, Description: "echo", InputSchema: []byte(`{}`)}
}

func (t *echoTool) Stream(ctx context.Context, tc *tether.ToolContext, ch chan<- tether.Event) (*tether.ToolResult, error) {
	return &tether.ToolResult{Status: tether.ToolStatusSuccess, Content: "ok"}, nil
}

func toolUseMsg(id string) *tether.ModelOutput {
	return &tether.ModelOutput{
		Message: tether.Message{Role: tether.RoleAssistant, Content: []tether.ContentBlock{
			tether.ToolUseBlock(tether.ToolUse{Name: "echo", ToolUseID: id, Input: []byte(`{}`)}),
		}},
		StopReason: tether.StopToolUse,
		Usage:      &tether.Usage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
	}
}

func endTurnMsg(text string) *tether.ModelOutput {
	return &tether.ModelOutput{
		Message:    tether.TextMessage(tether.RoleAssistant, text),
		StopReason: tether.StopEndTurn,
		Usage:      &tether.Usage{InputTokens: 20, OutputTokens: 4, TotalTokens: 24},
	}
}

func TestAdapterSpanSequenceForToolCycle(t *testing.T) {
	cap := &captureTracer{}
	adapter := NewHookAdapter(cap)

	provider := &scriptedProvider{outputs: []*tether.ModelOutput{toolUseMsg("tu-1"), endTurnMsg("done")}}
	agent := tether.New("a", provider,
		tether.WithTools(&echoTool{name: "echo"}),
		tether.WithHooks(adapter),
	)

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	want := []string{
		"start_agent",
		"start_cycle:cycle-0",
		"start_model",
		"end_model",
		// cycle continues into tool execution: no end_cycle yet
		"start_tool:tu-1",
		"end_tool",
		"end_cycle",
		"start_cycle:cycle-1",
		"start_model",
		"end_model",
		"end_cycle",
		"end_agent",
	}
	if len(cap.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", cap.calls, want)
	}
	for i := range want {
		if cap.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, cap.calls[i], want[i])
		}
	}
}

func TestAdapterAccumulatesUsageAcrossCycles(t *testing.T) {
	adapter := NewHookAdapter(&captureTracer{})
	provider := &scriptedProvider{outputs: []*tether.ModelOutput{toolUseMsg("tu-1"), endTurnMsg("done")}}
	agent := tether.New("a", provider,
		tether.WithTools(&echoTool{name: "echo"}),
		tether.WithHooks(adapter),
	)

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	u := adapter.Usage()
	if u.InputTokens != 30 || u.OutputTokens != 6 || u.TotalTokens != 36 {
		t.Errorf("usage = %+v, want 30/6/36", u)
	}
}

func TestAdapterResetsUsagePerInvocation(t *testing.T) {
	adapter := NewHookAdapter(&captureTracer{})
	provider := &scriptedProvider{outputs: []*tether.ModelOutput{endTurnMsg("one"), endTurnMsg("two")}}
	agent := tether.New("a", provider, tether.WithHooks(adapter))

	if _, err := agent.Invoke(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	if _, err := agent.Invoke(context.Background(), "second"); err != nil {
		t.Fatal(err)
	}
	// Second invocation's totals only, not a running sum.
	if u := adapter.Usage(); u.TotalTokens != 24 {
		t.Errorf("TotalTokens = %d, want 24", u.TotalTokens)
	}
}

func TestAdapterClosesDanglingSpansOnAbort(t *testing.T) {
	cap := &captureTracer{}
	adapter := NewHookAdapter(cap)

	agent := tether.New("a", &scriptedProvider{})
	ctx := context.Background()

	// Drive the adapter directly through an aborted sequence: model span
	// opened, then the invocation dies before AfterModelCall.
	adapter.BeforeInvocation(ctx, &tether.BeforeInvocationEvent{Agent: agent, InvocationID: "inv"})
	adapter.BeforeModelCall(ctx, &tether.BeforeModelCallEvent{Agent: agent, CycleID: "cycle-0"})
	adapter.AfterInvocation(ctx, &tether.AfterInvocationEvent{Agent: agent, Err: errors.New("cancelled")})

	want := []string{"start_agent", "start_cycle:cycle-0", "start_model", "end_model", "end_cycle", "end_agent"}
	if len(cap.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", cap.calls, want)
	}
	for i := range want {
		if cap.calls[i] != want[i] {
			t.Errorf("call[%d] = %q, want %q", i, cap.calls[i], want[i])
		}
	}
}

func TestAdapterSubsetTracer(t *testing.T) {
	mt := &modelOnlyTracer{}
	adapter := NewHookAdapter(mt)
	provider := &scriptedProvider{outputs: []*tether.ModelOutput{endTurnMsg("done")}}
	agent := tether.New("a", provider, tether.WithHooks(adapter))

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if mt.starts != 1 || mt.ends != 1 {
		t.Errorf("model spans = %d/%d, want 1/1", mt.starts, mt.ends)
	}
}

func TestAdapterCycleSpansDisabled(t *testing.T) {
	cap := &captureTracer{}
	adapter := NewHookAdapter(cap, WithCycleSpans(false))
	provider := &scriptedProvider{outputs: []*tether.ModelOutput{endTurnMsg("done")}}
	agent := tether.New("a", provider, tether.WithHooks(adapter))

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	for _, call := range cap.calls {
		if call == "start_cycle:cycle-0" {
			t.Error("cycle span started despite WithCycleSpans(false)")
		}
	}
}

// Full integration: real Tracer, real exporter, real loop.
func TestIntegrationSpanTree(t *testing.T) {
	tr, exp := newTestTracer(t, ConventionStable)
	base := spanctx.Depth()
	adapter := NewHookAdapter(tr)

	provider := &scriptedProvider{outputs: []*tether.ModelOutput{toolUseMsg("tu-1"), endTurnMsg("done")}}
	agent := tether.New("billing", provider,
		tether.WithTools(&echoTool{name: "echo"}),
		tether.WithHooks(adapter),
	)

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if spanctx.Depth() != base {
		t.Fatalf("context stack unbalanced after invocation: depth %d, want %d", spanctx.Depth(), base)
	}

	spans := exp.GetSpans()
	// 2 chat + 2 cycle + 1 tool + 1 agent
	if len(spans) != 6 {
		t.Fatalf("exported spans = %d, want 6", len(spans))
	}

	counts := map[string]int{}
	for _, s := range spans {
		counts[s.Name]++
	}
	if counts["invoke_agent billing"] != 1 || counts["execute_event_loop_cycle"] != 2 ||
		counts["chat"] != 2 || counts["execute_tool echo"] != 1 {
		t.Errorf("span counts = %v", counts)
	}

	// Everything shares the agent span's trace.
	var agentTrace string
	for _, s := range spans {
		if s.Name == "invoke_agent billing" {
			agentTrace = s.SpanContext.TraceID().String()
		}
	}
	for _, s := range spans {
		if s.SpanContext.TraceID().String() != agentTrace {
			t.Errorf("span %q escaped the invocation trace", s.Name)
		}
	}
}

func TestToolContextCarriesTraceparent(t *testing.T) {
	tr, _ := newTestTracer(t, ConventionStable)
	adapter := NewHookAdapter(tr)

	var captured *tether.TraceInfo
	inspect := &inspectTool{onRun: func(tc *tether.ToolContext) { captured = tc.Tracing }}

	provider := &scriptedProvider{outputs: []*tether.ModelOutput{
		{
			Message: tether.Message{Role: tether.RoleAssistant, Content: []tether.ContentBlock{
				tether.ToolUseBlock(tether.ToolUse{Name: "inspect", ToolUseID: "tu-1"}),
			}},
			StopReason: tether.StopToolUse,
		},
		endTurnMsg("done"),
	}}
	agent := tether.New("a", provider,
		tether.WithTools(inspect),
		tether.WithHooks(adapter),
	)

	if _, err := agent.Invoke(context.Background(), "go"); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if captured == nil {
		t.Fatal("tool saw no trace info despite active tracing")
	}
	if len(captured.Traceparent) != 55 {
		t.Errorf("traceparent = %q, want 55-char W3C form", captured.Traceparent)
	}
	if captured.TraceID == "" || captured.SpanID == "" {
		t.Errorf("trace info incomplete: %+v", captured)
	}
}

type inspectTool struct {
	onRun func(tc *tether.ToolContext)
}

func (t *inspectTool) Spec() tether.ToolSpec {
	return tether.ToolSpec{Name: "inspect", Description: "inspect", InputSchema: []byte(`{}`)}
}

func (t *inspectTool) Stream(ctx context.Context, tc *tether.ToolContext, ch chan<- tether.Event) (*tether.ToolResult, error) {
	t.onRun(tc)
	return &tether.ToolResult{Status: tether.ToolStatusSuccess, Content: "ok"}, nil
}
