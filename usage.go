package tether

// AccumulatedUsage sums token usage across the model calls of one
// invocation. Reset at invocation start, read when the agent span ends.
// Field-wise addition, so totals equal the sum of every report
// regardless of call order.
type AccumulatedUsage struct {
	InputTokens           int
	OutputTokens          int
	TotalTokens           int
	CacheReadInputTokens  int
	CacheWriteInputTokens int
}

// Add accumulates one model call's usage report. Nil reports are ignored.
func (a *AccumulatedUsage) Add(u *Usage) {
	if u == nil {
		return
	}
	a.InputTokens += u.InputTokens
	a.OutputTokens += u.OutputTokens
	a.TotalTokens += u.TotalTokens
	a.CacheReadInputTokens += u.CacheReadInputTokens
	a.CacheWriteInputTokens += u.CacheWriteInputTokens
}

// Reset zeroes all counters.
func (a *AccumulatedUsage) Reset() {
	*a = AccumulatedUsage{}
}
