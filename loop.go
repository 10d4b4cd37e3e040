package tether

import (
	"context"
	"fmt"
)

// runLoop is the invocation state machine: normalize input, then repeat
// model call → optional tool execution until a terminal stop reason.
// Caller holds the single-flight guard.
func (a *Agent) runLoop(ctx context.Context, input any, ch chan<- Event) (result Result, retErr error) {
	invocationID := NewID()

	inputMsgs, err := normalizeInput(input)
	if err != nil {
		return Result{}, err
	}

	emit(ctx, ch, Event{Type: EventInvocationStart, Name: a.name})
	for _, m := range inputMsgs {
		a.appendMessage(ctx, m, 0, ch)
	}

	a.logger.Info("invocation started", "agent", a.name, "invocation_id", invocationID)

	hookErr := a.hooks.beforeInvocation(ctx, &BeforeInvocationEvent{Agent: a, InvocationID: invocationID})

	// AfterInvocation fires exactly once, on success and on every error
	// path, so a started agent span is always closed.
	defer func() {
		var res *Result
		if retErr == nil {
			res = &result
		}
		a.hooks.afterInvocation(ctx, &AfterInvocationEvent{
			Agent:        a,
			InvocationID: invocationID,
			Result:       res,
			Err:          retErr,
		})
		a.logger.Info("invocation finished", "agent", a.name,
			"invocation_id", invocationID, "status", statusStr(retErr))
	}()
	if hookErr != nil {
		return Result{}, hookErr
	}

	for cycle := 0; ; cycle++ {
		if a.maxCycles > 0 && cycle >= a.maxCycles {
			return Result{}, &MaxCyclesExceededError{MaxCycles: a.maxCycles}
		}
		cycleID := fmt.Sprintf("cycle-%d", cycle)
		emit(ctx, ch, Event{Type: EventCycleStart, Cycle: cycle})

		out, err := a.callModel(ctx, cycle, cycleID, ch)
		if err != nil {
			return Result{}, err
		}

		// Terminal: the model did not request tools.
		if out.StopReason != StopToolUse {
			a.appendMessage(ctx, out.Message, cycle, ch)
			result = Result{StopReason: out.StopReason, LastMessage: out.Message}
			return result, nil
		}

		uses := out.Message.ToolUses()
		if len(uses) == 0 {
			return Result{}, &MalformedOutputError{Cycle: cycle}
		}

		if err := a.hooks.beforeTools(ctx, &BeforeToolsEvent{Agent: a, CycleID: cycleID, ToolUses: uses}); err != nil {
			return Result{}, err
		}

		// Tools run strictly sequentially, in the order the model emitted
		// them: result ordering must match request ordering for the
		// model's next turn.
		results := make([]ToolResult, 0, len(uses))
		for _, tu := range uses {
			emit(ctx, ch, Event{Type: EventToolStart, Cycle: cycle, Name: tu.Name, ToolUseID: tu.ToolUseID})
			tr := a.executeTool(ctx, tu, cycle, ch)
			results = append(results, tr)
			emit(ctx, ch, Event{Type: EventToolResult, Cycle: cycle, Name: tu.Name, ToolUseID: tu.ToolUseID, Result: &tr})
		}

		a.hooks.afterTools(ctx, &AfterToolsEvent{Agent: a, CycleID: cycleID, Results: results})

		// Append the assistant tool-use message and the user tool-result
		// message together, only after all tools finished, so the
		// conversation never rests with unresolved tool_use blocks.
		a.appendMessage(ctx, out.Message, cycle, ch)
		blocks := make([]ContentBlock, 0, len(results))
		for _, tr := range results {
			blocks = append(blocks, ToolResultBlock(tr))
		}
		a.appendMessage(ctx, Message{Role: RoleUser, Content: blocks}, cycle, ch)
	}
}

// callModel dispatches model hooks around one provider call, re-attempting
// the same cycle's call while a hook sets the retry flag on the error event.
func (a *Agent) callModel(ctx context.Context, cycle int, cycleID string, ch chan<- Event) (*ModelOutput, error) {
	for {
		if err := a.hooks.beforeModelCall(ctx, &BeforeModelCallEvent{Agent: a, CycleID: cycleID}); err != nil {
			return nil, err
		}

		view := a.messages
		if a.convManager != nil {
			view = a.convManager.Apply(ctx, a.messages)
		}

		out, err := a.provider.StreamAggregated(ctx, view, ModelOptions{
			SystemPrompt: a.systemPrompt,
			ToolSpecs:    a.tools.Specs(),
		}, ch)

		ev := &AfterModelCallEvent{Agent: a, CycleID: cycleID, Output: out, Err: err}
		a.hooks.afterModelCall(ctx, ev)

		if err != nil {
			if ev.Retry {
				a.logger.Warn("model call failed, hook requested retry",
					"agent", a.name, "cycle", cycleID, "error", err)
				continue
			}
			return nil, &ModelError{Cycle: cycle, Err: err}
		}
		return out, nil
	}
}

// appendMessage appends to the conversation, dispatches the MessageAdded
// hook synchronously at append time, then emits the stream event — so
// conversation observers see appends in true chronological order even
// when the stream consumer is slow to pull.
func (a *Agent) appendMessage(ctx context.Context, m Message, cycle int, ch chan<- Event) {
	a.messages = append(a.messages, m)
	a.hooks.messageAdded(ctx, &MessageAddedEvent{Agent: a, Message: m})
	emit(ctx, ch, Event{Type: EventMessageAdded, Cycle: cycle, Message: &m})
}

func statusStr(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
