package telemetry

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	tetherlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"

	tether "github.com/rwahyudi/tether"
)

// Capability interfaces for the span tracer. The adapter probes each at
// its call site, so a tracer may implement any subset and the adapter
// simply skips the span operations it cannot perform.
type (
	AgentSpanStarter interface {
		StartAgentSpan(ctx context.Context, agentName, systemPrompt string, messages []tether.Message) *SpanHandle
	}
	AgentSpanEnder interface {
		EndAgentSpan(h *SpanHandle, result *tether.Result, usage tether.AccumulatedUsage, err error)
	}
	CycleSpanStarter interface {
		StartCycleSpan(ctx context.Context, cycleID string) *SpanHandle
	}
	CycleSpanEnder interface {
		EndCycleSpan(h *SpanHandle, err error)
	}
	ModelSpanStarter interface {
		StartModelSpan(ctx context.Context, messages []tether.Message) *SpanHandle
	}
	ModelSpanEnder interface {
		EndModelSpan(h *SpanHandle, out *tether.ModelOutput, err error)
	}
	ToolSpanStarter interface {
		StartToolSpan(ctx context.Context, tu tether.ToolUse) *SpanHandle
	}
	ToolSpanEnder interface {
		EndToolSpan(h *SpanHandle, res *tether.ToolResult, err error)
	}
)

// HookAdapter translates the loop's lifecycle events into tracer span
// calls and owns the "which span matches this event" bookkeeping, so
// the Tracer itself stays stateless. It also accumulates token usage
// across the invocation and, when Instruments are configured, records
// metrics and an invocation log record.
//
// The adapter's state is touched only from the loop's synchronous hook
// dispatch, never concurrently.
type HookAdapter struct {
	tracer any
	inst   *Instruments
	logger *slog.Logger

	cycleSpans bool

	usage     tether.AccumulatedUsage
	agentSpan *SpanHandle
	cycleSpan *SpanHandle
	modelSpan *SpanHandle
	// toolSpans is keyed by toolUseID. Tools execute sequentially today;
	// the map keeps the bookkeeping correct if they ever do not.
	toolSpans map[string]*SpanHandle

	invocationStart time.Time
	modelStart      time.Time
	toolStart       map[string]time.Time
	agentName       string
}

// AdapterOption configures a HookAdapter.
type AdapterOption func(*HookAdapter)

// WithInstruments enables metric counters and invocation log records.
func WithInstruments(inst *Instruments) AdapterOption {
	return func(a *HookAdapter) { a.inst = inst }
}

// WithCycleSpans toggles per-cycle spans. Enabled by default.
func WithCycleSpans(enabled bool) AdapterOption {
	return func(a *HookAdapter) { a.cycleSpans = enabled }
}

// WithAdapterLogger sets a structured logger.
func WithAdapterLogger(l *slog.Logger) AdapterOption {
	return func(a *HookAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewHookAdapter creates an adapter around any tracer implementing a
// subset of the capability interfaces. A start capability without its
// matching end guarantees context-stack corruption, so that combination
// is reported at construction.
func NewHookAdapter(tracer any, opts ...AdapterOption) *HookAdapter {
	a := &HookAdapter{
		tracer:     tracer,
		logger:     slog.New(discardHandler{}),
		cycleSpans: true,
		toolSpans:  make(map[string]*SpanHandle),
		toolStart:  make(map[string]time.Time),
	}
	for _, o := range opts {
		o(a)
	}
	a.warnUnbalanced()
	return a
}

func (a *HookAdapter) warnUnbalanced() {
	pairs := []struct {
		name       string
		start, end bool
	}{
		{"agent", implementsAgentStart(a.tracer), implementsAgentEnd(a.tracer)},
		{"cycle", implementsCycleStart(a.tracer), implementsCycleEnd(a.tracer)},
		{"model", implementsModelStart(a.tracer), implementsModelEnd(a.tracer)},
		{"tool", implementsToolStart(a.tracer), implementsToolEnd(a.tracer)},
	}
	for _, p := range pairs {
		if p.start && !p.end {
			a.logger.Warn("tracer implements a span starter without its ender; the span-context stack will corrupt",
				"span", p.name)
		}
	}
}

func implementsAgentStart(t any) bool { _, ok := t.(AgentSpanStarter); return ok }
func implementsAgentEnd(t any) bool   { _, ok := t.(AgentSpanEnder); return ok }
func implementsCycleStart(t any) bool { _, ok := t.(CycleSpanStarter); return ok }
func implementsCycleEnd(t any) bool   { _, ok := t.(CycleSpanEnder); return ok }
func implementsModelStart(t any) bool { _, ok := t.(ModelSpanStarter); return ok }
func implementsModelEnd(t any) bool   { _, ok := t.(ModelSpanEnder); return ok }
func implementsToolStart(t any) bool  { _, ok := t.(ToolSpanStarter); return ok }
func implementsToolEnd(t any) bool    { _, ok := t.(ToolSpanEnder); return ok }

// Usage returns the usage accumulated so far in the current invocation.
func (a *HookAdapter) Usage() tether.AccumulatedUsage { return a.usage }

// BeforeInvocation resets per-invocation state and opens the agent span.
func (a *HookAdapter) BeforeInvocation(ctx context.Context, ev *tether.BeforeInvocationEvent) error {
	a.usage.Reset()
	a.agentSpan, a.cycleSpan, a.modelSpan = nil, nil, nil
	clear(a.toolSpans)
	clear(a.toolStart)
	a.invocationStart = time.Now()
	a.agentName = ev.Agent.Name()

	if t, ok := a.tracer.(AgentSpanStarter); ok {
		a.agentSpan = t.StartAgentSpan(ctx, ev.Agent.Name(), ev.Agent.SystemPrompt(), ev.Agent.Messages())
	}
	return nil
}

// BeforeModelCall opens the cycle span (when enabled and none is active)
// and then the model span, which parents to whichever context is on top
// of the stack.
func (a *HookAdapter) BeforeModelCall(ctx context.Context, ev *tether.BeforeModelCallEvent) error {
	if a.cycleSpans && a.cycleSpan == nil {
		if t, ok := a.tracer.(CycleSpanStarter); ok {
			a.cycleSpan = t.StartCycleSpan(ctx, ev.CycleID)
		}
	}
	a.modelStart = time.Now()
	if t, ok := a.tracer.(ModelSpanStarter); ok {
		a.modelSpan = t.StartModelSpan(ctx, ev.Agent.Messages())
	}
	return nil
}

// AfterModelCall accumulates usage, ends the model span, and ends the
// cycle span unless the cycle continues into tool execution.
func (a *HookAdapter) AfterModelCall(ctx context.Context, ev *tether.AfterModelCallEvent) error {
	if ev.Output != nil {
		a.usage.Add(ev.Output.Usage)
	}

	if t, ok := a.tracer.(ModelSpanEnder); ok {
		t.EndModelSpan(a.modelSpan, ev.Output, ev.Err)
	}
	a.modelSpan = nil

	cycleContinues := ev.Err == nil && ev.Output != nil && ev.Output.StopReason == tether.StopToolUse
	if !cycleContinues {
		a.endCycle(ev.Err)
	}

	if a.inst != nil {
		status := "ok"
		if ev.Err != nil {
			status = "error"
		}
		attrs := metric.WithAttributes(
			AttrAgentName.String(a.agentName),
			attribute.String("status", status),
		)
		a.inst.ModelCalls.Add(ctx, 1, attrs)
		a.inst.ModelDuration.Record(ctx, float64(time.Since(a.modelStart).Milliseconds()),
			metric.WithAttributes(AttrAgentName.String(a.agentName)))
		if ev.Output != nil && ev.Output.Usage != nil {
			a.inst.TokenUsage.Add(ctx, int64(ev.Output.Usage.InputTokens),
				metric.WithAttributes(attribute.String("token.type", "input")))
			a.inst.TokenUsage.Add(ctx, int64(ev.Output.Usage.OutputTokens),
				metric.WithAttributes(attribute.String("token.type", "output")))
		}
	}
	return nil
}

// BeforeToolCall opens a tool span keyed by toolUseID.
func (a *HookAdapter) BeforeToolCall(ctx context.Context, ev *tether.BeforeToolCallEvent) error {
	a.toolStart[ev.ToolUse.ToolUseID] = time.Now()
	if t, ok := a.tracer.(ToolSpanStarter); ok {
		a.toolSpans[ev.ToolUse.ToolUseID] = t.StartToolSpan(ctx, ev.ToolUse)
	}
	return nil
}

// AfterToolCall ends the matching tool span.
func (a *HookAdapter) AfterToolCall(ctx context.Context, ev *tether.AfterToolCallEvent) error {
	h := a.toolSpans[ev.ToolUse.ToolUseID]
	delete(a.toolSpans, ev.ToolUse.ToolUseID)
	if t, ok := a.tracer.(ToolSpanEnder); ok {
		t.EndToolSpan(h, &ev.Result, ev.Err)
	}

	if a.inst != nil {
		a.inst.ToolExecutions.Add(ctx, 1, metric.WithAttributes(
			AttrToolName.String(ev.ToolUse.Name),
			attribute.String("status", string(ev.Result.Status)),
		))
		if start, ok := a.toolStart[ev.ToolUse.ToolUseID]; ok {
			delete(a.toolStart, ev.ToolUse.ToolUseID)
			a.inst.ToolDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
				metric.WithAttributes(AttrToolName.String(ev.ToolUse.Name)))
		}
	}
	return nil
}

// AfterTools ends the cycle span left open by the tool path.
func (a *HookAdapter) AfterTools(_ context.Context, _ *tether.AfterToolsEvent) error {
	a.endCycle(nil)
	return nil
}

// AfterInvocation ends any spans still pending (the loop can abort
// between a start and its normal end; leaving them open would unbalance
// the context stack), then ends the agent span with accumulated usage.
func (a *HookAdapter) AfterInvocation(ctx context.Context, ev *tether.AfterInvocationEvent) error {
	for id, h := range a.toolSpans {
		if t, ok := a.tracer.(ToolSpanEnder); ok {
			t.EndToolSpan(h, nil, ev.Err)
		}
		delete(a.toolSpans, id)
	}
	if a.modelSpan != nil {
		if t, ok := a.tracer.(ModelSpanEnder); ok {
			t.EndModelSpan(a.modelSpan, nil, ev.Err)
		}
		a.modelSpan = nil
	}
	a.endCycle(ev.Err)

	if t, ok := a.tracer.(AgentSpanEnder); ok {
		t.EndAgentSpan(a.agentSpan, ev.Result, a.usage, ev.Err)
	}
	a.agentSpan = nil

	if a.inst != nil {
		status := "ok"
		if ev.Err != nil {
			status = "error"
		}
		durationMs := float64(time.Since(a.invocationStart).Milliseconds())
		a.inst.Invocations.Add(ctx, 1, metric.WithAttributes(
			AttrAgentName.String(a.agentName),
			attribute.String("status", status),
		))
		a.inst.InvocationDuration.Record(ctx, durationMs,
			metric.WithAttributes(AttrAgentName.String(a.agentName)))

		var rec tetherlog.Record
		rec.SetSeverity(tetherlog.SeverityInfo)
		rec.SetBody(tetherlog.StringValue("agent invocation completed"))
		rec.AddAttributes(
			tetherlog.String("agent.name", a.agentName),
			tetherlog.String("status", status),
			tetherlog.Int("tokens.input", a.usage.InputTokens),
			tetherlog.Int("tokens.output", a.usage.OutputTokens),
			tetherlog.Float64("duration_ms", durationMs),
		)
		a.inst.Logger.Emit(ctx, rec)
	}
	return nil
}

func (a *HookAdapter) endCycle(err error) {
	if a.cycleSpan == nil {
		return
	}
	if t, ok := a.tracer.(CycleSpanEnder); ok {
		t.EndCycleSpan(a.cycleSpan, err)
	}
	a.cycleSpan = nil
}

// compile-time checks
var (
	_ tether.BeforeInvocationHook = (*HookAdapter)(nil)
	_ tether.AfterInvocationHook  = (*HookAdapter)(nil)
	_ tether.BeforeModelCallHook  = (*HookAdapter)(nil)
	_ tether.AfterModelCallHook   = (*HookAdapter)(nil)
	_ tether.BeforeToolCallHook   = (*HookAdapter)(nil)
	_ tether.AfterToolCallHook    = (*HookAdapter)(nil)
	_ tether.AfterToolsHook       = (*HookAdapter)(nil)

	_ AgentSpanStarter = (*Tracer)(nil)
	_ AgentSpanEnder   = (*Tracer)(nil)
	_ CycleSpanStarter = (*Tracer)(nil)
	_ CycleSpanEnder   = (*Tracer)(nil)
	_ ModelSpanStarter = (*Tracer)(nil)
	_ ModelSpanEnder   = (*Tracer)(nil)
	_ ToolSpanStarter  = (*Tracer)(nil)
	_ ToolSpanEnder    = (*Tracer)(nil)
)
