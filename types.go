package tether

import "encoding/json"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// StopReason is the model's signal for why it finished a turn.
type StopReason string

const (
	// StopEndTurn means the model completed its response normally.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse means the model is requesting tool execution before
	// it can continue.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens means the model hit its output token limit.
	StopMaxTokens StopReason = "max_tokens"
)

// BlockType tags the variant held by a ContentBlock.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one unit of message content. Exactly one of the
// variant fields is set, selected by Type.
type ContentBlock struct {
	Type BlockType `json:"type"`

	// Text is set when Type == BlockText.
	Text string `json:"text,omitempty"`
	// ToolUse is set when Type == BlockToolUse.
	ToolUse *ToolUse `json:"tool_use,omitempty"`
	// ToolResult is set when Type == BlockToolResult.
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// Message is one turn of the conversation. Messages are immutable once
// constructed; the agent loop only ever appends new instances.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ToolUse is a model request to run a tool. ToolUseID is the join key
// correlating this request to its ToolResult in a later message.
type ToolUse struct {
	Name      string          `json:"name"`
	ToolUseID string          `json:"tool_use_id"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// ToolResultStatus reports whether a tool execution succeeded.
type ToolResultStatus string

const (
	ToolStatusSuccess ToolResultStatus = "success"
	ToolStatusError   ToolResultStatus = "error"
)

// ToolResult is the outcome of executing one ToolUse.
type ToolResult struct {
	ToolUseID string           `json:"tool_use_id"`
	Status    ToolResultStatus `json:"status"`
	Content   string           `json:"content"`
}

// Usage reports token consumption for a single model call. Pointer
// fields on ModelOutput distinguish "not measured" from zero.
type Usage struct {
	InputTokens           int `json:"input_tokens"`
	OutputTokens          int `json:"output_tokens"`
	TotalTokens           int `json:"total_tokens"`
	CacheReadInputTokens  int `json:"cache_read_input_tokens,omitempty"`
	CacheWriteInputTokens int `json:"cache_write_input_tokens,omitempty"`
}

// Metrics reports provider-measured latency for a single model call.
type Metrics struct {
	LatencyMs int64 `json:"latency_ms"`
}

// ModelOutput is the aggregated final value of one model call.
type ModelOutput struct {
	Message    Message
	StopReason StopReason
	// Usage and Metrics are nil when the provider did not report them.
	Usage   *Usage
	Metrics *Metrics
}

// Result is the final value of an invocation: the reason the loop
// stopped and the last message appended to the conversation.
type Result struct {
	StopReason  StopReason
	LastMessage Message
}

// --- Message constructors ---

// TextMessage builds a single-block text message.
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Content: []ContentBlock{TextBlock(text)}}
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ToolUseBlock wraps a ToolUse into a content block.
func ToolUseBlock(tu ToolUse) ContentBlock {
	return ContentBlock{Type: BlockToolUse, ToolUse: &tu}
}

// ToolResultBlock wraps a ToolResult into a content block.
func ToolResultBlock(tr ToolResult) ContentBlock {
	return ContentBlock{Type: BlockToolResult, ToolResult: &tr}
}

// ToolUses extracts the ToolUse payloads from a message, in block order.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, b := range m.Content {
		if b.Type == BlockToolUse && b.ToolUse != nil {
			uses = append(uses, *b.ToolUse)
		}
	}
	return uses
}

// Text concatenates the message's text blocks.
func (m Message) Text() string {
	var out string
	for _, b := range m.Content {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}
