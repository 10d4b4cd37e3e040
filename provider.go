package tether

import "context"

// ModelOptions carries per-call options alongside the conversation.
type ModelOptions struct {
	SystemPrompt string
	ToolSpecs    []ToolSpec
}

// ModelProvider is the model backend collaborator. StreamAggregated
// streams incremental events onto ch (which may be nil) while the call
// is in progress and returns the aggregated final output. The loop
// depends only on this shape, never on a provider wire protocol.
type ModelProvider interface {
	StreamAggregated(ctx context.Context, messages []Message, opts ModelOptions, ch chan<- Event) (*ModelOutput, error)
}
