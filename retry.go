package tether

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"
)

// retryProvider wraps a ModelProvider and automatically retries transient
// HTTP errors (status 429 Too Many Requests and 503 Service Unavailable)
// with exponential backoff.
type retryProvider struct {
	inner       ModelProvider
	maxAttempts int
	baseDelay   time.Duration
	timeout     time.Duration // overall timeout across all attempts; 0 = no limit
	logger      *slog.Logger
}

// RetryOption configures a retry wrapper.
type RetryOption func(*retryProvider)

// RetryMaxAttempts sets the maximum number of attempts (default: 3).
func RetryMaxAttempts(n int) RetryOption {
	return func(r *retryProvider) { r.maxAttempts = n }
}

// RetryBaseDelay sets the initial backoff delay before the second attempt
// (default: 1s). Each subsequent delay doubles.
func RetryBaseDelay(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.baseDelay = d }
}

// RetryTimeout sets the overall timeout for the entire retry sequence.
// The zero value (default) disables the timeout.
func RetryTimeout(d time.Duration) RetryOption {
	return func(r *retryProvider) { r.timeout = d }
}

// RetryLogger sets the structured logger for retry events. Retries log at
// WARN and final failures after exhausting attempts log at ERROR.
func RetryLogger(l *slog.Logger) RetryOption {
	return func(r *retryProvider) { r.logger = l }
}

// WithRetry wraps p with automatic retry on transient HTTP errors (429,
// 503). Retries use exponential backoff with jitter; when the error
// carries a Retry-After duration, the delay is at least that long.
// Compose with any ModelProvider:
//
//	llm := tether.WithRetry(openaicompat.New(baseURL, apiKey, model))
//	llm := tether.WithRetry(provider, tether.RetryMaxAttempts(5))
func WithRetry(p ModelProvider, opts ...RetryOption) ModelProvider {
	r := &retryProvider{
		inner:       p,
		maxAttempts: 3,
		baseDelay:   time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = nopLogger
	}
	return r
}

// StreamAggregated implements ModelProvider with retry. A retry is only
// performed if no events have been forwarded to ch yet; once streaming
// has reached the caller, errors pass through immediately to avoid
// duplicate content.
func (r *retryProvider) StreamAggregated(ctx context.Context, messages []Message, opts ModelOptions, ch chan<- Event) (*ModelOutput, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var lastErr error
	for i := 0; i < r.maxAttempts; i++ {
		mid := make(chan Event, 64)
		var (
			out     *ModelOutput
			callErr error
		)
		done := make(chan struct{})
		go func() {
			defer close(done)
			defer close(mid)
			out, callErr = r.inner.StreamAggregated(ctx, messages, opts, mid)
		}()

		var forwarded bool
		for ev := range mid {
			if ch == nil {
				continue
			}
			forwarded = true
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}
		<-done

		if callErr == nil || !isTransient(callErr) || forwarded {
			return out, callErr
		}

		lastErr = callErr
		r.logger.Warn("retrying transient model error",
			"status", statusOf(callErr),
			"attempt", i+1,
			"max_attempts", r.maxAttempts)
		if i < r.maxAttempts-1 {
			timer := time.NewTimer(retryDelay(r.baseDelay, i, callErr))
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
	r.logger.Error("all retry attempts exhausted",
		"attempts", r.maxAttempts,
		"error", lastErr)
	return nil, lastErr
}

// withTimeout returns a child context with a deadline if r.timeout is set.
// If timeout is zero or ctx already has an earlier deadline, returns ctx
// unchanged.
func (r *retryProvider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	deadline := time.Now().Add(r.timeout)
	if existing, ok := ctx.Deadline(); ok && existing.Before(deadline) {
		return ctx, func() {}
	}
	return context.WithDeadline(ctx, deadline)
}

// isTransient reports whether err is a retryable HTTP error (429 or 503).
func isTransient(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && (e.Status == 429 || e.Status == 503)
}

// statusOf extracts the HTTP status code from an HTTPError, or 0.
func statusOf(err error) int {
	var e *HTTPError
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// retryAfterOf extracts the Retry-After duration from an HTTPError, or 0.
func retryAfterOf(err error) time.Duration {
	var e *HTTPError
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// retryDelay computes the delay before retry attempt i, using exponential
// backoff as a floor and the server's Retry-After value (if present) as a
// minimum.
func retryDelay(base time.Duration, i int, err error) time.Duration {
	backoff := retryBackoff(base, i)
	if ra := retryAfterOf(err); ra > backoff {
		return ra
	}
	return backoff
}

// retryBackoff returns the delay for retry i (0-indexed).
// Exponential: base * 2^i, plus up to 50% random jitter.
func retryBackoff(base time.Duration, i int) time.Duration {
	exp := base * (1 << i)
	jitter := time.Duration(rand.Int63n(int64(exp)/2 + 1))
	return exp + jitter
}

var _ ModelProvider = (*retryProvider)(nil)
