package tether

import (
	"context"
	"fmt"
	"log/slog"
)

// Lifecycle events dispatched by the agent loop. Each event type has a
// matching single-method hook interface; a registered hook participates
// only in the events whose interfaces it implements, the same
// interface-subset pattern the processor chains in this codebase use.

// BeforeInvocationEvent fires once when an invocation begins, after
// input normalization.
type BeforeInvocationEvent struct {
	Agent        *Agent
	InvocationID string
}

// AfterInvocationEvent fires exactly once when an invocation ends,
// on both the success and the error path.
type AfterInvocationEvent struct {
	Agent        *Agent
	InvocationID string
	// Result is nil when the invocation failed.
	Result *Result
	Err    error
}

// MessageAddedEvent fires synchronously at append time for every message
// added to the conversation, before the corresponding stream event is
// emitted, so observers see appends in true chronological order.
type MessageAddedEvent struct {
	Agent   *Agent
	Message Message
}

// BeforeModelCallEvent fires before each model call.
type BeforeModelCallEvent struct {
	Agent   *Agent
	CycleID string
}

// AfterModelCallEvent fires after each model call. On failure Output is
// nil and Err is set; a handler may set Retry to re-attempt the same
// cycle's model call.
type AfterModelCallEvent struct {
	Agent   *Agent
	CycleID string
	Output  *ModelOutput
	Err     error
	// Retry requests a re-attempt of the failed model call. Only
	// meaningful when Err is non-nil.
	Retry bool
}

// BeforeToolsEvent fires once per cycle before any requested tool runs.
type BeforeToolsEvent struct {
	Agent    *Agent
	CycleID  string
	ToolUses []ToolUse
}

// AfterToolsEvent fires once per cycle after every requested tool ran.
type AfterToolsEvent struct {
	Agent   *Agent
	CycleID string
	Results []ToolResult
}

// BeforeToolCallEvent fires before one tool execution.
type BeforeToolCallEvent struct {
	Agent   *Agent
	ToolUse ToolUse
}

// AfterToolCallEvent fires after one tool execution, including the
// missing-tool and tool-failure paths. Err carries the normalized
// failure when Result.Status is ToolStatusError.
type AfterToolCallEvent struct {
	Agent   *Agent
	ToolUse ToolUse
	Result  ToolResult
	Err     error
}

// --- Hook interfaces ---

type BeforeInvocationHook interface {
	BeforeInvocation(ctx context.Context, ev *BeforeInvocationEvent) error
}

type AfterInvocationHook interface {
	AfterInvocation(ctx context.Context, ev *AfterInvocationEvent) error
}

type MessageAddedHook interface {
	MessageAdded(ctx context.Context, ev *MessageAddedEvent) error
}

type BeforeModelCallHook interface {
	BeforeModelCall(ctx context.Context, ev *BeforeModelCallEvent) error
}

type AfterModelCallHook interface {
	AfterModelCall(ctx context.Context, ev *AfterModelCallEvent) error
}

type BeforeToolsHook interface {
	BeforeTools(ctx context.Context, ev *BeforeToolsEvent) error
}

type AfterToolsHook interface {
	AfterTools(ctx context.Context, ev *AfterToolsEvent) error
}

type BeforeToolCallHook interface {
	BeforeToolCall(ctx context.Context, ev *BeforeToolCallEvent) error
}

type AfterToolCallHook interface {
	AfterToolCall(ctx context.Context, ev *AfterToolCallEvent) error
}

// HookRegistry holds an ordered list of hooks and dispatches lifecycle
// events to them in registration order. Each callback is fully awaited
// before the next runs and before the loop proceeds past the dispatch
// point.
//
// Errors from Before* hooks abort the invocation. Errors from After*
// and MessageAdded hooks are logged and swallowed — by the time they
// fire the work they observe has already happened.
type HookRegistry struct {
	hooks  []any
	logger *slog.Logger
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{logger: nopLogger}
}

// SetLogger sets the logger used to report swallowed After* hook errors.
func (r *HookRegistry) SetLogger(l *slog.Logger) {
	if l != nil {
		r.logger = l
	}
}

// Add appends a hook. The hook must implement at least one of the hook
// interfaces; Add panics otherwise, since a no-op registration is
// always a wiring mistake.
func (r *HookRegistry) Add(h any) {
	switch h.(type) {
	case BeforeInvocationHook, AfterInvocationHook, MessageAddedHook,
		BeforeModelCallHook, AfterModelCallHook,
		BeforeToolsHook, AfterToolsHook,
		BeforeToolCallHook, AfterToolCallHook:
		r.hooks = append(r.hooks, h)
	default:
		panic(fmt.Sprintf("tether: hook %T implements no hook interface", h))
	}
}

// Len returns the number of registered hooks.
func (r *HookRegistry) Len() int { return len(r.hooks) }

func (r *HookRegistry) beforeInvocation(ctx context.Context, ev *BeforeInvocationEvent) error {
	for _, h := range r.hooks {
		if hook, ok := h.(BeforeInvocationHook); ok {
			if err := hook.BeforeInvocation(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *HookRegistry) afterInvocation(ctx context.Context, ev *AfterInvocationEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(AfterInvocationHook); ok {
			if err := hook.AfterInvocation(ctx, ev); err != nil {
				r.logger.Warn("after-invocation hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}
	}
}

func (r *HookRegistry) messageAdded(ctx context.Context, ev *MessageAddedEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(MessageAddedHook); ok {
			if err := hook.MessageAdded(ctx, ev); err != nil {
				r.logger.Warn("message-added hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}
	}
}

func (r *HookRegistry) beforeModelCall(ctx context.Context, ev *BeforeModelCallEvent) error {
	for _, h := range r.hooks {
		if hook, ok := h.(BeforeModelCallHook); ok {
			if err := hook.BeforeModelCall(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *HookRegistry) afterModelCall(ctx context.Context, ev *AfterModelCallEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(AfterModelCallHook); ok {
			if err := hook.AfterModelCall(ctx, ev); err != nil {
				r.logger.Warn("after-model-call hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}
	}
}

func (r *HookRegistry) beforeTools(ctx context.Context, ev *BeforeToolsEvent) error {
	for _, h := range r.hooks {
		if hook, ok := h.(BeforeToolsHook); ok {
			if err := hook.BeforeTools(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *HookRegistry) afterTools(ctx context.Context, ev *AfterToolsEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(AfterToolsHook); ok {
			if err := hook.AfterTools(ctx, ev); err != nil {
				r.logger.Warn("after-tools hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}
	}
}

func (r *HookRegistry) beforeToolCall(ctx context.Context, ev *BeforeToolCallEvent) error {
	for _, h := range r.hooks {
		if hook, ok := h.(BeforeToolCallHook); ok {
			if err := hook.BeforeToolCall(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *HookRegistry) afterToolCall(ctx context.Context, ev *AfterToolCallEvent) {
	for _, h := range r.hooks {
		if hook, ok := h.(AfterToolCallHook); ok {
			if err := hook.AfterToolCall(ctx, ev); err != nil {
				r.logger.Warn("after-tool-call hook failed", "hook", fmt.Sprintf("%T", h), "error", err)
			}
		}
	}
}
