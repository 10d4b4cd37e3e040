package tether

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"github.com/rwahyudi/tether/spanctx"
)

// executeTool resolves one ToolUse to a ToolResult. It never returns an
// error: missing tools, tools that produce no result, returned errors
// and panics are all normalized into an error-status ToolResult so the
// model sees the failure as conversation content in the next cycle.
func (a *Agent) executeTool(ctx context.Context, tu ToolUse, cycle int, ch chan<- Event) ToolResult {
	tool, ok := a.tools.Get(tu.Name)
	if !ok {
		tr := errorResult(tu, fmt.Sprintf("Tool '%s' not found in registry", tu.Name))
		a.hooks.afterToolCall(ctx, &AfterToolCallEvent{Agent: a, ToolUse: tu, Result: tr})
		return tr
	}

	if err := a.hooks.beforeToolCall(ctx, &BeforeToolCallEvent{Agent: a, ToolUse: tu}); err != nil {
		tr := errorResult(tu, "tool hook rejected execution: "+err.Error())
		a.hooks.afterToolCall(ctx, &AfterToolCallEvent{Agent: a, ToolUse: tu, Result: tr, Err: err})
		return tr
	}

	// Run the handler with the tool span (pushed by a BeforeToolCall
	// hook) as the active tracing context for its whole duration, so
	// nested instrumentation inside the tool parents correctly.
	execCtx := spanctx.Active(ctx)

	tc := &ToolContext{ToolUse: tu, Agent: a, Tracing: traceInfo(execCtx)}

	res, err := runToolRecovered(execCtx, tool, tc, cycle, ch)

	var tr ToolResult
	switch {
	case err != nil:
		a.logger.Warn("tool execution failed", "tool", tu.Name, "tool_use_id", tu.ToolUseID, "error", err)
		tr = errorResult(tu, err.Error())
	case res == nil:
		tr = errorResult(tu, fmt.Sprintf("Tool '%s' did not return a result", tu.Name))
	default:
		tr = *res
		tr.ToolUseID = tu.ToolUseID
		if tr.Status == "" {
			tr.Status = ToolStatusSuccess
		}
	}

	a.hooks.afterToolCall(ctx, &AfterToolCallEvent{Agent: a, ToolUse: tu, Result: tr, Err: err})
	return tr
}

// runToolRecovered invokes the tool's streaming handler, converting a
// panic into an error so tool flakiness never aborts the loop. Progress
// events are re-tagged with the cycle and tool_use id before forwarding.
func runToolRecovered(ctx context.Context, tool Tool, tc *ToolContext, cycle int, ch chan<- Event) (res *ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = nil
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()

	var toolCh chan Event
	var done chan struct{}
	if ch != nil {
		toolCh = make(chan Event)
		done = make(chan struct{})
		go func() {
			defer close(done)
			for ev := range toolCh {
				ev.Type = EventToolProgress
				ev.Cycle = cycle
				ev.ToolUseID = tc.ToolUse.ToolUseID
				ev.Name = tc.ToolUse.Name
				emit(ctx, ch, ev)
			}
		}()
		defer func() {
			close(toolCh)
			<-done
		}()
	}
	return tool.Stream(ctx, tc, toolCh)
}

func errorResult(tu ToolUse, content string) ToolResult {
	return ToolResult{ToolUseID: tu.ToolUseID, Status: ToolStatusError, Content: content}
}

// traceInfo extracts the W3C trace context of the span active in ctx.
// Returns nil when tracing is not enabled (no valid span in ctx).
func traceInfo(ctx context.Context) *TraceInfo {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return nil
	}
	info := &TraceInfo{
		Traceparent: spanctx.Traceparent(sc),
		TraceID:     sc.TraceID().String(),
		SpanID:      sc.SpanID().String(),
		TraceFlags:  fmt.Sprintf("%02x", byte(sc.TraceFlags())),
	}
	if ts := sc.TraceState().String(); ts != "" {
		info.Tracestate = ts
	}
	return info
}
