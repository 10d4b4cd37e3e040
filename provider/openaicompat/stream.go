package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	tether "github.com/rwahyudi/tether"
)

// streamSSE reads a chat-completions SSE stream, forwards text deltas
// onto ch, and returns the fully aggregated output.
//
// SSE format expected:
//
//	data: {"choices":[...]}\n
//	data: [DONE]\n
func streamSSE(ctx context.Context, body io.Reader, ch chan<- tether.Event) (*tether.ModelOutput, error) {
	scanner := bufio.NewScanner(body)
	// Increase buffer for large SSE payloads.
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var content strings.Builder
	var finishReason string
	var usage *tether.Usage

	// Tool calls stream incrementally: each fragment carries an index
	// and argument string pieces.
	type partialToolCall struct {
		id   string
		name string
		args strings.Builder
	}
	var toolCalls []*partialToolCall

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			// Skip malformed chunks.
			continue
		}

		if chunk.Usage != nil {
			usage = &tether.Usage{
				InputTokens:  chunk.Usage.PromptTokens,
				OutputTokens: chunk.Usage.CompletionTokens,
				TotalTokens:  chunk.Usage.TotalTokens,
			}
			if d := chunk.Usage.PromptTokensDetails; d != nil {
				usage.CacheReadInputTokens = d.CachedTokens
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta == nil {
			continue
		}

		if choice.Delta.Content != "" {
			content.WriteString(choice.Delta.Content)
			if ch != nil {
				select {
				case ch <- tether.Event{Type: tether.EventModelDelta, Content: choice.Delta.Content}:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}

		for _, td := range choice.Delta.ToolCalls {
			for len(toolCalls) <= td.Index {
				toolCalls = append(toolCalls, &partialToolCall{})
			}
			pc := toolCalls[td.Index]
			if td.ID != "" {
				pc.id = td.ID
			}
			if td.Function.Name != "" {
				pc.name = td.Function.Name
			}
			pc.args.WriteString(td.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("openaicompat: read stream: %w", err)
	}

	var blocks []tether.ContentBlock
	if content.Len() > 0 {
		blocks = append(blocks, tether.TextBlock(content.String()))
	}
	for _, pc := range toolCalls {
		id := pc.id
		if id == "" {
			id = tether.NewID()
		}
		blocks = append(blocks, tether.ToolUseBlock(tether.ToolUse{
			Name:      pc.name,
			ToolUseID: id,
			Input:     json.RawMessage(pc.args.String()),
		}))
	}

	return &tether.ModelOutput{
		Message:    tether.Message{Role: tether.RoleAssistant, Content: blocks},
		StopReason: mapFinishReason(finishReason, len(toolCalls) > 0),
		Usage:      usage,
	}, nil
}

// mapFinishReason converts an OpenAI finish_reason to a StopReason.
func mapFinishReason(reason string, hasToolCalls bool) tether.StopReason {
	switch reason {
	case "tool_calls", "function_call":
		return tether.StopToolUse
	case "length":
		return tether.StopMaxTokens
	case "stop":
		return tether.StopEndTurn
	default:
		// Some providers omit finish_reason on tool-call turns.
		if hasToolCalls {
			return tether.StopToolUse
		}
		return tether.StopEndTurn
	}
}
