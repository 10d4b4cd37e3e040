// Package telemetry provides OTEL-based observability for tether agents.
//
// It maps the agent loop's lifecycle hooks onto a tree of gen_ai.* spans
// via HookAdapter, keeping parent-child nesting correct across the loop's
// suspension points with the explicit context stack in package spanctx.
// Users export to any OTEL-compatible backend by setting standard OTEL
// env vars, or to the console for local development.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	tetherlog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/rwahyudi/tether/telemetry"

// Config selects exporter wiring for Init.
type Config struct {
	// ServiceName sets the OTEL service.name resource attribute.
	// Empty defaults to "tether".
	ServiceName string
	// ConsoleTrace writes spans to stdout instead of OTLP, for local
	// development.
	ConsoleTrace bool
	// UseExperimentalConventions selects the per-message span event
	// encoding (see ConventionMode). Read once at Tracer construction.
	UseExperimentalConventions bool
}

// Instruments holds the OTEL instruments shared by the hook adapter.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger tetherlog.Logger

	// Counters
	TokenUsage     metric.Int64Counter
	ModelCalls     metric.Int64Counter
	ToolExecutions metric.Int64Counter
	Invocations    metric.Int64Counter

	// Histograms
	ModelDuration      metric.Float64Histogram
	ToolDuration       metric.Float64Histogram
	InvocationDuration metric.Float64Histogram
}

// Init sets up OTEL trace, metric, and log providers. OTLP HTTP exporter
// configuration comes from standard OTEL env vars
// (OTEL_EXPORTER_OTLP_ENDPOINT, etc.). Returns a shutdown function that
// must be called on application exit.
func Init(ctx context.Context, cfg Config) (*Instruments, func(context.Context) error, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "tether"
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(name)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	var traceExp sdktrace.SpanExporter
	if cfg.ConsoleTrace {
		traceExp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	} else {
		traceExp, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	tokenUsage, err := meter.Int64Counter("gen_ai.client.token.usage",
		metric.WithDescription("Total tokens consumed"),
		metric.WithUnit("{token}"))
	if err != nil {
		return nil, err
	}

	modelCalls, err := meter.Int64Counter("gen_ai.client.model.calls",
		metric.WithDescription("Model call count"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}

	toolExecutions, err := meter.Int64Counter("gen_ai.client.tool.executions",
		metric.WithDescription("Tool execution count"),
		metric.WithUnit("{execution}"))
	if err != nil {
		return nil, err
	}

	invocations, err := meter.Int64Counter("gen_ai.client.invocations",
		metric.WithDescription("Agent invocation count"),
		metric.WithUnit("{invocation}"))
	if err != nil {
		return nil, err
	}

	modelDuration, err := meter.Float64Histogram("gen_ai.client.model.duration",
		metric.WithDescription("Model call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	toolDuration, err := meter.Float64Histogram("gen_ai.client.tool.duration",
		metric.WithDescription("Tool execution duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	invocationDuration, err := meter.Float64Histogram("gen_ai.client.invocation.duration",
		metric.WithDescription("Agent invocation duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:             tracer,
		Meter:              meter,
		Logger:             logger,
		TokenUsage:         tokenUsage,
		ModelCalls:         modelCalls,
		ToolExecutions:     toolExecutions,
		Invocations:        invocations,
		ModelDuration:      modelDuration,
		ToolDuration:       toolDuration,
		InvocationDuration: invocationDuration,
	}, nil
}
