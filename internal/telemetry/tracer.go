// Package telemetry wraps OpenTelemetry tracing for the agent runtime:
// turns, provider requests, and tool executions each get a span so a
// caller can export to whatever backend they wire up.
//
// Unlike a service that talks to a fixed collector, this runtime is a
// library embedded in many different host programs, so the exporter is
// caller-supplied rather than hard-wired to a protocol. A host that
// wants OTLP wires an otlptrace exporter of its own choosing and passes
// it in as Config.Exporter; a host that wants nothing passes none and
// gets a no-op tracer.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the tracer. Exporter is optional: a nil Exporter
// yields a no-op Tracer that still satisfies the full API, so callers
// never need to nil-check before starting spans.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// Exporter receives finished spans. Nil disables tracing.
	Exporter sdktrace.SpanExporter

	// SamplingRate is in [0, 1]; 0 disables sampling, >=1 samples
	// everything. Ignored when Exporter is nil.
	SamplingRate float64
}

// Tracer starts spans around agent turns, provider requests, and tool
// executions.
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// New builds a Tracer from cfg. The returned shutdown func flushes and
// stops the underlying provider; it is a no-op when tracing is
// disabled. Callers should defer shutdown(ctx) regardless.
func New(cfg Config) (*Tracer, func(context.Context) error) {
	if cfg.Exporter == nil {
		return &Tracer{tracer: otel.Tracer(cfg.ServiceName)}, func(context.Context) error { return nil }
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SamplingRate)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(cfg.Exporter),
		sdktrace.WithResource(resourceFor(cfg)),
		sdktrace.WithSampler(sampler),
	)
	otel.SetTracerProvider(provider)

	t := &Tracer{
		provider: provider,
		tracer:   provider.Tracer(cfg.ServiceName),
	}
	return t, provider.Shutdown
}

func resourceFor(cfg Config) *resource.Resource {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(cfg.ServiceName),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, semconv.ServiceVersion(cfg.ServiceVersion))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironment(cfg.Environment))
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return resource.Default()
	}
	return res
}

// StartTurn opens a span around a single agent-loop turn (spec 4.E).
func (t *Tracer) StartTurn(ctx context.Context, sessionID string, turnIndex int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "agent.turn", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("turn.index", turnIndex),
	))
}

// StartProviderRequest opens a span around a single provider call.
func (t *Tracer) StartProviderRequest(ctx context.Context, provider, model string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "provider.request", trace.WithAttributes(
		attribute.String("provider.id", provider),
		attribute.String("provider.model", model),
	), trace.WithSpanKind(trace.SpanKindClient))
}

// StartToolExecution opens a span around one tool call's execution.
func (t *Tracer) StartToolExecution(ctx context.Context, toolName, toolCallID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "tool.execute", trace.WithAttributes(
		attribute.String("tool.name", toolName),
		attribute.String("tool.call_id", toolCallID),
	), trace.WithSpanKind(trace.SpanKindInternal))
}

// RecordError records err on span and marks it failed. A nil err is a
// no-op so callers can call this unconditionally after every span.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
