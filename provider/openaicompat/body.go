package openaicompat

import (
	tether "github.com/rwahyudi/tether"
)

// buildBody converts a tether conversation into the OpenAI wire shape.
// Assistant tool_use blocks become tool_calls; tool_result blocks become
// one role:"tool" message each, preserving block order.
func buildBody(messages []tether.Message, opts tether.ModelOptions, model string) chatRequest {
	wire := make([]wireMessage, 0, len(messages)+1)
	if opts.SystemPrompt != "" {
		wire = append(wire, wireMessage{Role: "system", Content: opts.SystemPrompt})
	}

	for _, m := range messages {
		switch m.Role {
		case tether.RoleAssistant:
			msg := wireMessage{Role: "assistant", Content: m.Text()}
			for _, b := range m.Content {
				if b.Type == tether.BlockToolUse && b.ToolUse != nil {
					msg.ToolCalls = append(msg.ToolCalls, wireToolCall{
						ID:   b.ToolUse.ToolUseID,
						Type: "function",
						Function: wireFunction{
							Name:      b.ToolUse.Name,
							Arguments: string(b.ToolUse.Input),
						},
					})
				}
			}
			wire = append(wire, msg)
		default:
			// User messages may mix text and tool results; results
			// become standalone tool messages.
			if text := m.Text(); text != "" {
				wire = append(wire, wireMessage{Role: "user", Content: text})
			}
			for _, b := range m.Content {
				if b.Type == tether.BlockToolResult && b.ToolResult != nil {
					wire = append(wire, wireMessage{
						Role:       "tool",
						Content:    b.ToolResult.Content,
						ToolCallID: b.ToolResult.ToolUseID,
					})
				}
			}
		}
	}

	req := chatRequest{
		Model:         model,
		Messages:      wire,
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
	}
	for _, spec := range opts.ToolSpecs {
		req.Tools = append(req.Tools, wireTool{
			Type: "function",
			Function: wireToolFuncDef{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.InputSchema,
			},
		})
	}
	return req
}
