package tether

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Agent owns a conversation and drives the invoke/stream loop against a
// model provider. The conversation is mutated only by the loop, never by
// tools or hooks directly.
type Agent struct {
	name         string
	provider     ModelProvider
	tools        *ToolRegistry
	hooks        *HookRegistry
	systemPrompt string
	convManager  ConversationManager
	logger       *slog.Logger
	maxCycles    int

	// messages is the append-only conversation history. At rest the last
	// message is never an assistant message with unresolved tool_use
	// blocks: tool-use and tool-result messages are appended together.
	messages []Message

	// inFlight is the single-flight invocation guard.
	inFlight atomic.Bool
}

// Option configures an Agent.
type Option func(*Agent)

// WithTools registers tools the model may request.
func WithTools(tools ...Tool) Option {
	return func(a *Agent) {
		for _, t := range tools {
			a.tools.Add(t)
		}
	}
}

// WithHooks registers lifecycle hooks in order.
func WithHooks(hooks ...any) Option {
	return func(a *Agent) {
		for _, h := range hooks {
			a.hooks.Add(h)
		}
	}
}

// WithSystemPrompt sets the system prompt sent with every model call.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.systemPrompt = prompt }
}

// WithLogger sets a structured logger. Defaults to a no-op logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMaxCycles bounds the number of loop cycles per invocation. Zero
// (the default) means unbounded: a model that always requests tool use
// produces an unbounded event sequence.
func WithMaxCycles(n int) Option {
	return func(a *Agent) { a.maxCycles = n }
}

// WithConversationManager sets the history-trimming policy applied to
// the conversation view sent to the model.
func WithConversationManager(m ConversationManager) Option {
	return func(a *Agent) { a.convManager = m }
}

// WithMessages seeds the conversation with prior history, e.g. loaded
// from a SessionStore.
func WithMessages(msgs []Message) Option {
	return func(a *Agent) { a.messages = append(a.messages, msgs...) }
}

// New creates an Agent backed by the given model provider.
func New(name string, provider ModelProvider, opts ...Option) *Agent {
	a := &Agent{
		name:     name,
		provider: provider,
		tools:    NewToolRegistry(),
		hooks:    NewHookRegistry(),
		logger:   nopLogger,
	}
	for _, o := range opts {
		o(a)
	}
	a.hooks.SetLogger(a.logger)
	return a
}

// Name returns the agent's name.
func (a *Agent) Name() string { return a.name }

// SystemPrompt returns the configured system prompt.
func (a *Agent) SystemPrompt() string { return a.systemPrompt }

// Tools returns the agent's tool registry.
func (a *Agent) Tools() *ToolRegistry { return a.tools }

// Hooks returns the agent's hook registry.
func (a *Agent) Hooks() *HookRegistry { return a.hooks }

// Messages returns a copy of the conversation history.
func (a *Agent) Messages() []Message {
	out := make([]Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Invoke runs the loop to completion and returns only the final Result.
func (a *Agent) Invoke(ctx context.Context, input any) (Result, error) {
	return a.Stream(ctx, input, nil)
}

// Stream runs the loop, emitting typed Events on ch throughout execution,
// and returns the final Result. ch may be nil (Invoke mode) and is never
// closed by the agent. Only one invocation may be in flight per Agent; a
// concurrent call fails immediately with ErrConcurrentInvocation. The
// guard is released when Stream returns, on every path.
func (a *Agent) Stream(ctx context.Context, input any, ch chan<- Event) (Result, error) {
	if !a.inFlight.CompareAndSwap(false, true) {
		return Result{}, ErrConcurrentInvocation
	}
	defer a.inFlight.Store(false)
	return a.runLoop(ctx, input, ch)
}
