package tether

import "context"

// ConversationManager is the history-trimming collaborator. Apply
// returns the view of the conversation to send to the model; it never
// mutates the agent's own history.
type ConversationManager interface {
	Apply(ctx context.Context, messages []Message) []Message
}

// SlidingWindowManager keeps the most recent WindowSize messages. The
// window start is adjusted forward past any leading tool-result message
// so a ToolResult is never sent without its requesting ToolUse.
type SlidingWindowManager struct {
	// WindowSize is the maximum number of trailing messages to keep.
	// Zero or negative means no trimming.
	WindowSize int
}

func (m SlidingWindowManager) Apply(_ context.Context, messages []Message) []Message {
	if m.WindowSize <= 0 || len(messages) <= m.WindowSize {
		return messages
	}
	start := len(messages) - m.WindowSize
	for start < len(messages) && startsWithToolResult(messages[start]) {
		start++
	}
	return messages[start:]
}

func startsWithToolResult(m Message) bool {
	for _, b := range m.Content {
		if b.Type == BlockToolResult {
			return true
		}
	}
	return false
}
