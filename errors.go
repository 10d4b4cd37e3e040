package tether

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrConcurrentInvocation is returned when Stream or Invoke is called
// while another invocation is still in flight on the same Agent.
var ErrConcurrentInvocation = errors.New("tether: invocation already in flight")

// ModelError wraps a model-provider failure that no hook opted to retry.
// It is fatal to the invocation.
type ModelError struct {
	Cycle int
	Err   error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model call failed in cycle-%d: %v", e.Cycle, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// MalformedOutputError reports a model output that violates the provider
// contract: a tool_use stop reason with no tool_use content blocks.
type MalformedOutputError struct {
	Cycle int
}

func (e *MalformedOutputError) Error() string {
	return fmt.Sprintf("model returned stop reason %q with no tool_use blocks in cycle-%d", StopToolUse, e.Cycle)
}

// MaxCyclesExceededError is returned when the loop hits the configured
// cycle bound before the model produced a terminal stop reason.
type MaxCyclesExceededError struct {
	MaxCycles int
}

func (e *MaxCyclesExceededError) Error() string {
	return fmt.Sprintf("agent loop exceeded %d cycles without a terminal stop reason", e.MaxCycles)
}

// HTTPError is a non-2xx response from a model endpoint. Retry middleware
// uses Status and RetryAfter to classify and pace transient failures.
type HTTPError struct {
	Status     int
	Body       string
	RetryAfter time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ParseRetryAfter parses a Retry-After header value. Only the
// delta-seconds form is supported; absent or malformed values return 0.
func ParseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
