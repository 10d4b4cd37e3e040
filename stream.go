package tether

import "context"

// EventType identifies the kind of streaming event.
type EventType string

const (
	// EventInvocationStart signals the loop accepted the input and began.
	EventInvocationStart EventType = "invocation-start"
	// EventCycleStart signals a new model-call cycle.
	EventCycleStart EventType = "cycle-start"
	// EventMessageAdded signals a message was appended to the conversation.
	EventMessageAdded EventType = "message-added"
	// EventModelDelta carries an incremental text chunk from the model.
	EventModelDelta EventType = "model-delta"
	// EventToolStart signals a tool is about to be executed.
	EventToolStart EventType = "tool-start"
	// EventToolProgress carries an intermediate event streamed by a tool.
	EventToolProgress EventType = "tool-progress"
	// EventToolResult carries the result of a completed tool execution.
	EventToolResult EventType = "tool-result"
)

// Event is a typed event emitted during an invocation. Consumers receive
// these on the channel passed to Agent.Stream; the loop selects on
// ctx.Done() for every send, so a cancelled consumer never wedges it.
type Event struct {
	// Type identifies the event kind.
	Type EventType `json:"type"`
	// Cycle is the zero-based cycle index the event belongs to.
	Cycle int `json:"cycle"`
	// Name is the agent or tool name, when applicable.
	Name string `json:"name,omitempty"`
	// ToolUseID correlates tool events to the requesting ToolUse block.
	ToolUseID string `json:"tool_use_id,omitempty"`
	// Content carries the text delta (model-delta) or tool progress text.
	Content string `json:"content,omitempty"`
	// Message is set for message-added events.
	Message *Message `json:"message,omitempty"`
	// Result is set for tool-result events.
	Result *ToolResult `json:"result,omitempty"`
}

// emit sends an event on ch, giving up if the context is cancelled.
// A nil channel (Invoke mode) drops the event.
func emit(ctx context.Context, ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}
