// Package spanctx keeps an explicit LIFO stack of tracing contexts.
//
// The agent loop's control flow hops across channel sends and separately
// scheduled goroutines, so OpenTelemetry's call-stack-based context
// propagation does not reliably reflect "the span started most recently
// by this logical execution". Span starters push the context carrying
// their span; span enders pop exactly once, on every path. "Current
// context" is always resolved from the top of the stack, falling back
// to the caller's context only when the stack is empty.
//
// The default stack is process-wide and shared by all tracers. Pushes
// and pops must stay balanced: an unbalanced pop corrupts the apparent
// trace hierarchy for all subsequent spans, not just the unbalanced one.
package spanctx

import (
	"context"
	"sync"
)

// Stack is a LIFO stack of tracing contexts. The zero value is ready to
// use. The mutex guards the slice itself; nesting correctness still
// depends on balanced push/pop from one logical execution.
type Stack struct {
	mu   sync.Mutex
	ctxs []context.Context
}

// Push puts ctx on top of the stack.
func (s *Stack) Push(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctxs = append(s.ctxs, ctx)
}

// Pop removes and returns the top context. Returns nil on an empty
// stack rather than panicking, so an already-unbalanced caller does not
// take the process down with it.
func (s *Stack) Pop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ctxs) == 0 {
		return nil
	}
	top := s.ctxs[len(s.ctxs)-1]
	s.ctxs[len(s.ctxs)-1] = nil
	s.ctxs = s.ctxs[:len(s.ctxs)-1]
	return top
}

// Active returns the top context, or fallback when the stack is empty.
func (s *Stack) Active(fallback context.Context) context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ctxs) == 0 {
		return fallback
	}
	return s.ctxs[len(s.ctxs)-1]
}

// Depth returns the current stack depth.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ctxs)
}

// defaultStack is the process-wide stack shared by all tracers.
var defaultStack Stack

// Push pushes onto the process-wide stack.
func Push(ctx context.Context) { defaultStack.Push(ctx) }

// Pop pops from the process-wide stack.
func Pop() context.Context { return defaultStack.Pop() }

// Active reads the top of the process-wide stack, or fallback.
func Active(fallback context.Context) context.Context { return defaultStack.Active(fallback) }

// Depth reports the process-wide stack depth.
func Depth() int { return defaultStack.Depth() }
