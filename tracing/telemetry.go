package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/casualjim/runrelay/pkg/slogx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	InstrumentationName    = "github.com/casualjim/runrelay"
	InstrumentationVersion = "1.0.0"
)

type Config struct {
	ServiceName string
	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	// Tracing is disabled when empty.
	Endpoint string
	Headers  map[string]string
	Insecure bool
	// SampleRatio is the fraction of root spans sampled; 0 means always sample.
	SampleRatio float64
	// RecordContent attaches prompts to spans.
	RecordContent bool
}

// Telemetry owns the tracer provider and propagator of one process.
type Telemetry struct {
	provider      trace.TracerProvider
	propagator    propagation.TextMapPropagator
	shutdown      func(context.Context) error
	recordContent bool
}

// Setup creates the tracer provider described by cfg. The provider is also
// registered globally so libraries that only know the global API take part.
func Setup(ctx context.Context, cfg Config) (*Telemetry, error) {
	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(prop)

	if cfg.Endpoint == "" {
		slog.DebugContext(ctx, "tracing disabled, no exporter endpoint configured")
		return &Telemetry{
			provider:      noop.NewTracerProvider(),
			propagator:    prop,
			shutdown:      func(context.Context) error { return nil },
			recordContent: cfg.RecordContent,
		}, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(cfg.Endpoint)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(cfg.Headers))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "runrelay"
	}
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRatio > 0 && cfg.SampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
	)
	otel.SetTracerProvider(tp)

	return New(tp, prop, cfg.RecordContent, tp.Shutdown), nil
}

// New assembles a Telemetry from parts. Tests use it with an in-memory
// span recorder.
func New(provider trace.TracerProvider, prop propagation.TextMapPropagator, recordContent bool, shutdown func(context.Context) error) *Telemetry {
	if provider == nil {
		provider = noop.NewTracerProvider()
	}
	if prop == nil {
		prop = propagation.TraceContext{}
	}
	if shutdown == nil {
		shutdown = func(context.Context) error { return nil }
	}
	return &Telemetry{
		provider:      provider,
		propagator:    prop,
		shutdown:      shutdown,
		recordContent: recordContent,
	}
}

// Tracer returns the tracer used for agent runs.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.provider.Tracer(InstrumentationName, trace.WithInstrumentationVersion(InstrumentationVersion))
}

// RecordContent reports whether prompts and message text may be put on spans.
func (t *Telemetry) RecordContent() bool {
	return t.recordContent
}

// Inject captures the span context of ctx into a correlation token.
func (t *Telemetry) Inject(ctx context.Context) Carrier {
	c := Carrier{}
	t.propagator.Inject(ctx, propagation.MapCarrier(c))
	return c
}

// Extract returns ctx with the remote span context held by c.
func (t *Telemetry) Extract(ctx context.Context, c Carrier) context.Context {
	if len(c) == 0 {
		return ctx
	}
	return t.propagator.Extract(ctx, propagation.MapCarrier(c))
}

// Shutdown flushes pending spans. It is safe to call on a nil Telemetry.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if err := t.shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.ErrorContext(ctx, "failed to shut down tracer provider", slogx.Error(err))
		return err
	}
	return nil
}

// Carrier is an opaque correlation token, the W3C traceparent/tracestate
// headers of a span.
type Carrier map[string]string

// TraceParent returns the traceparent entry, empty when the token carries none.
func (c Carrier) TraceParent() string {
	return c["traceparent"]
}
