package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	tether "github.com/rwahyudi/tether"
	"github.com/rwahyudi/tether/spanctx"
)

// ConventionMode selects how message payloads are encoded onto spans.
// It is read once at Tracer construction and used for the Tracer's whole
// lifetime, so all spans from one Tracer are internally consistent.
type ConventionMode int

const (
	// ConventionStable emits one aggregate prompt event and one
	// aggregate completion event per span.
	ConventionStable ConventionMode = iota
	// ConventionExperimental emits one span event per message.
	ConventionExperimental
)

// SpanHandle wraps a started span together with the context that has it
// active. It must be ended exactly once, by the same logical owner that
// started it.
type SpanHandle struct {
	ctx  context.Context
	span trace.Span
}

// Context returns the context carrying the handle's span.
func (h *SpanHandle) Context() context.Context { return h.ctx }

// Tracer creates and ends the agent/cycle/model/tool spans of the loop,
// pushing and popping the span-context stack so children parent to the
// span started most recently by the same logical execution.
type Tracer struct {
	tracer      trace.Tracer
	conventions ConventionMode
	logger      *slog.Logger
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithConventions selects the message-encoding convention mode.
func WithConventions(mode ConventionMode) TracerOption {
	return func(t *Tracer) { t.conventions = mode }
}

// WithTracerLogger sets a structured logger for the tracer.
func WithTracerLogger(l *slog.Logger) TracerOption {
	return func(t *Tracer) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracer creates a Tracer backed by the global OTEL TracerProvider.
// Call Init first to configure the provider; otherwise spans go to a
// no-op backend.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(scopeName),
		conventions: ConventionStable,
		logger:      slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// start creates a span parented to the top-of-stack context (falling
// back to ctx when the stack is empty), pushes the new context, and
// returns the handle immediately.
func (t *Tracer) start(ctx context.Context, name string, attrs ...attribute.KeyValue) *SpanHandle {
	parent := spanctx.Active(ctx)
	spanCtx, span := t.tracer.Start(parent, name, trace.WithAttributes(attrs...))
	spanctx.Push(spanCtx)
	return &SpanHandle{ctx: spanCtx, span: span}
}

// end records the outcome, ends the span, and pops the context stack.
// The pop is unconditional: it happens even when attribute recording
// panics, because an unbalanced stack corrupts every subsequent span.
// A nil handle is a no-op so callers never branch defensively.
func (t *Tracer) end(h *SpanHandle, err error, attrs []attribute.KeyValue, events []spanEvent) {
	if h == nil {
		return
	}
	defer func() {
		h.span.End()
		spanctx.Pop()
	}()
	h.span.SetAttributes(attrs...)
	for _, ev := range events {
		h.span.AddEvent(ev.name, trace.WithAttributes(ev.attrs...))
	}
	if err != nil {
		h.span.RecordError(err, trace.WithStackTrace(true))
		h.span.SetStatus(codes.Error, err.Error())
	} else {
		h.span.SetStatus(codes.Ok, "")
	}
}

type spanEvent struct {
	name  string
	attrs []attribute.KeyValue
}

// StartAgentSpan opens the root span of one invocation:
// "invoke_agent <name>".
func (t *Tracer) StartAgentSpan(ctx context.Context, agentName, systemPrompt string, messages []tether.Message) *SpanHandle {
	attrs := []attribute.KeyValue{
		AttrOperationName.String("invoke_agent"),
		AttrAgentName.String(agentName),
	}
	if systemPrompt != "" {
		attrs = append(attrs, AttrSystemPrompt.String(systemPrompt))
	}
	h := t.start(ctx, "invoke_agent "+agentName, attrs...)
	for _, ev := range t.messageEvents(messages) {
		h.span.AddEvent(ev.name, trace.WithAttributes(ev.attrs...))
	}
	return h
}

// EndAgentSpan closes the invocation span, attaching accumulated usage.
func (t *Tracer) EndAgentSpan(h *SpanHandle, result *tether.Result, usage tether.AccumulatedUsage, err error) {
	attrs := []attribute.KeyValue{
		AttrUsageInputTokens.Int(usage.InputTokens),
		AttrUsageOutputTokens.Int(usage.OutputTokens),
		AttrUsageTotalTokens.Int(usage.TotalTokens),
	}
	if usage.CacheReadInputTokens > 0 {
		attrs = append(attrs, AttrUsageCacheReadTokens.Int(usage.CacheReadInputTokens))
	}
	if usage.CacheWriteInputTokens > 0 {
		attrs = append(attrs, AttrUsageCacheWriteTokens.Int(usage.CacheWriteInputTokens))
	}
	var events []spanEvent
	if result != nil {
		attrs = append(attrs, AttrResponseFinishReason.StringSlice([]string{string(result.StopReason)}))
		events = t.outputEvents(result.LastMessage, result.StopReason)
	}
	t.end(h, err, attrs, events)
}

// StartCycleSpan opens an "execute_event_loop_cycle" span.
func (t *Tracer) StartCycleSpan(ctx context.Context, cycleID string) *SpanHandle {
	return t.start(ctx, "execute_event_loop_cycle",
		AttrOperationName.String("execute_event_loop_cycle"),
		AttrCycleID.String(cycleID))
}

// EndCycleSpan closes a cycle span.
func (t *Tracer) EndCycleSpan(h *SpanHandle, err error) {
	t.end(h, err, nil, nil)
}

// StartModelSpan opens a "chat" span carrying the conversation sent to
// the model, encoded per the convention mode.
func (t *Tracer) StartModelSpan(ctx context.Context, messages []tether.Message) *SpanHandle {
	h := t.start(ctx, "chat", AttrOperationName.String("chat"))
	for _, ev := range t.messageEvents(messages) {
		h.span.AddEvent(ev.name, trace.WithAttributes(ev.attrs...))
	}
	return h
}

// EndModelSpan closes a model span. Usage and latency are attached only
// when the provider reported them; absent optional fields are omitted,
// never defaulted to zero, so zero stays a distinguishable measurement.
func (t *Tracer) EndModelSpan(h *SpanHandle, out *tether.ModelOutput, err error) {
	var attrs []attribute.KeyValue
	var events []spanEvent
	if out != nil {
		if out.Usage != nil {
			attrs = append(attrs,
				AttrUsageInputTokens.Int(out.Usage.InputTokens),
				AttrUsageOutputTokens.Int(out.Usage.OutputTokens),
				AttrUsageTotalTokens.Int(out.Usage.TotalTokens),
			)
			if out.Usage.CacheReadInputTokens > 0 {
				attrs = append(attrs, AttrUsageCacheReadTokens.Int(out.Usage.CacheReadInputTokens))
			}
			if out.Usage.CacheWriteInputTokens > 0 {
				attrs = append(attrs, AttrUsageCacheWriteTokens.Int(out.Usage.CacheWriteInputTokens))
			}
		}
		if out.Metrics != nil {
			attrs = append(attrs, AttrResponseLatencyMs.Int64(out.Metrics.LatencyMs))
		}
		attrs = append(attrs, AttrResponseFinishReason.StringSlice([]string{string(out.StopReason)}))
		events = t.outputEvents(out.Message, out.StopReason)
	}
	t.end(h, err, attrs, events)
}

// StartToolSpan opens an "execute_tool <name>" span.
func (t *Tracer) StartToolSpan(ctx context.Context, tu tether.ToolUse) *SpanHandle {
	attrs := []attribute.KeyValue{
		AttrOperationName.String("execute_tool"),
		AttrToolName.String(tu.Name),
		AttrToolCallID.String(tu.ToolUseID),
	}
	if len(tu.Input) > 0 {
		attrs = append(attrs, AttrPrompt.String(jsonSafe(tu.Input)))
	}
	return t.start(ctx, "execute_tool "+tu.Name, attrs...)
}

// EndToolSpan closes a tool span with its result status.
func (t *Tracer) EndToolSpan(h *SpanHandle, res *tether.ToolResult, err error) {
	var attrs []attribute.KeyValue
	var events []spanEvent
	if res != nil {
		attrs = append(attrs, AttrToolStatus.String(string(res.Status)))
		events = append(events, spanEvent{
			name:  eventContentCompletion,
			attrs: []attribute.KeyValue{AttrCompletion.String(jsonSafe(res))},
		})
		if err == nil && res.Status == tether.ToolStatusError {
			h.recordToolError(res.Content)
			t.end(h, nil, attrs, events)
			return
		}
	}
	t.end(h, err, attrs, events)
}

func (h *SpanHandle) recordToolError(msg string) {
	if h == nil {
		return
	}
	h.span.SetStatus(codes.Error, msg)
}

// messageEvents encodes input messages per the convention mode.
func (t *Tracer) messageEvents(messages []tether.Message) []spanEvent {
	if len(messages) == 0 {
		return nil
	}
	if t.conventions == ConventionStable {
		return []spanEvent{{
			name:  eventContentPrompt,
			attrs: []attribute.KeyValue{AttrPrompt.String(jsonSafe(messages))},
		}}
	}
	events := make([]spanEvent, 0, len(messages))
	for _, m := range messages {
		events = append(events, spanEvent{
			name:  messageEventName(m),
			attrs: []attribute.KeyValue{attribute.String("content", jsonSafe(m.Content))},
		})
	}
	return events
}

// outputEvents encodes the model's output message per the convention mode.
func (t *Tracer) outputEvents(msg tether.Message, stop tether.StopReason) []spanEvent {
	if t.conventions == ConventionStable {
		return []spanEvent{{
			name:  eventContentCompletion,
			attrs: []attribute.KeyValue{AttrCompletion.String(jsonSafe(msg.Content))},
		}}
	}
	return []spanEvent{{
		name: eventChoice,
		attrs: []attribute.KeyValue{
			attribute.String("message", jsonSafe(msg.Content)),
			attribute.String("finish_reason", string(stop)),
		},
	}}
}

func messageEventName(m tether.Message) string {
	for _, b := range m.Content {
		if b.Type == tether.BlockToolResult {
			return eventToolMessage
		}
	}
	if m.Role == tether.RoleAssistant {
		return eventAssistantMessage
	}
	return eventUserMessage
}
