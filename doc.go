// Package tether is an agent-orchestration SDK: it drives the loop of
// "call a language model, execute the tools it requests, repeat until the
// model stops", while emitting a typed event stream and OpenTelemetry spans
// for every step.
//
// # Quick Start
//
//	provider := openaicompat.New(baseURL, apiKey, model)
//
//	agent := tether.New("assistant", provider,
//		tether.WithSystemPrompt("You are a helpful assistant."),
//		tether.WithTools(fetch.New()),
//	)
//
//	result, err := agent.Invoke(ctx, "Summarize https://example.com")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [ModelProvider] — streaming LLM backend producing an aggregated [ModelOutput]
//   - [Tool] — pluggable capability the model can request
//   - [HookRegistry] — ordered multicast dispatch of lifecycle events
//   - [ConversationManager] — history-trimming policy applied before each model call
//   - [SessionStore] — conversation persistence (store/sqlite, store/postgres)
//
// # Observability
//
// The telemetry package maps lifecycle events onto a tree of gen_ai.* spans
// via a hook adapter, using an explicit span-context stack (package spanctx)
// so parent-child nesting stays correct across the loop's suspension points.
//
// See cmd/tether-demo for a complete wired example.
package tether
