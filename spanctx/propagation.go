package spanctx

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
)

// Traceparent renders a span context in the W3C Trace Context wire
// format: {2-hex version}-{32-hex trace id}-{16-hex span id}-{2-hex
// flags}. The exact textual shape is a compatibility contract with any
// Trace-Context-aware backend.
func Traceparent(sc trace.SpanContext) string {
	return fmt.Sprintf("00-%s-%s-%02x",
		sc.TraceID().String(),
		sc.SpanID().String(),
		byte(sc.TraceFlags()))
}

// Inject writes traceparent (and tracestate when present) headers for
// the span active in ctx into carrier. No-op when ctx has no valid span
// context, so callers never need to check tracing state first.
func Inject(ctx context.Context, carrier map[string]string) {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return
	}
	carrier["traceparent"] = Traceparent(sc)
	if ts := sc.TraceState().String(); ts != "" {
		carrier["tracestate"] = ts
	}
}
