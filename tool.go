package tether

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"` // JSON Schema
}

// ToolContext is passed to a tool's Stream method for one execution.
type ToolContext struct {
	// ToolUse is the model's request being executed.
	ToolUse ToolUse
	// Agent is the agent driving the execution.
	Agent *Agent
	// Tracing carries the active tool span's W3C trace context. Nil when
	// tracing is not enabled.
	Tracing *TraceInfo
}

// TraceInfo is the W3C Trace Context of the span active during a tool
// execution, for propagation into outbound calls made by the tool.
type TraceInfo struct {
	Traceparent string
	TraceID     string
	SpanID      string
	TraceFlags  string
	Tracestate  string
}

// Tool is a pluggable capability the model can request. Stream may emit
// intermediate progress events on ch (which may be nil) and returns the
// final result. A nil result with a nil error means the tool produced
// no result; the loop synthesizes an error ToolResult for it.
type Tool interface {
	Spec() ToolSpec
	Stream(ctx context.Context, tc *ToolContext, ch chan<- Event) (*ToolResult, error)
}

// ToolRegistry holds available tools by name.
type ToolRegistry struct {
	order []string
	tools map[string]Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Add registers a tool under its spec name, replacing any previous tool
// with the same name.
func (r *ToolRegistry) Add(t Tool) {
	name := t.Spec().Name
	if _, ok := r.tools[name]; !ok {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get looks up a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Specs returns all registered tool specs in registration order.
func (r *ToolRegistry) Specs() []ToolSpec {
	specs := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.tools) }
