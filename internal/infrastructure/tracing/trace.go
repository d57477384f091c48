package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/GriffinCanCode/spanwire/tracing"

// Handle is the process-wide tracer capability the interceptor depends on.
// Implementations must be safe for concurrent use.
type Handle interface {
	// Extract returns ctx carrying the remote span context found in carrier.
	// A missing or invalid context is not an error: ctx is returned as is.
	Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context
	// StartSpan starts a span as a child of whatever span context ctx carries.
	StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, *Span)
	// Inject writes the propagation fields of span into carrier.
	Inject(span *Span, carrier propagation.TextMapCarrier)
}

// Config configures the OpenTelemetry tracer provider.
type Config struct {
	ServiceName string
	// SampleRatio is the fraction of root traces sampled. Remote parents
	// keep their own sampling decision.
	SampleRatio float64
	// LogSpans exports every finished span to the logger.
	LogSpans bool
}

// Tracer manages distributed tracing on top of the OpenTelemetry SDK.
type Tracer struct {
	provider   *sdktrace.TracerProvider
	tracer     trace.Tracer
	propagator propagation.TextMapPropagator
	logger     *zap.Logger
}

var _ Handle = (*Tracer)(nil)

// New creates the tracer provider and registers it, together with the W3C
// propagator and a zap-backed error handler, as the otel globals.
func New(cfg Config, logger *zap.Logger, opts ...sdktrace.TracerProviderOption) (*Tracer, error) {
	if cfg.ServiceName == "" {
		return nil, fmt.Errorf("tracing: service name is required")
	}
	if cfg.SampleRatio < 0 || cfg.SampleRatio > 1 {
		return nil, fmt.Errorf("tracing: sample ratio %v out of range [0,1]", cfg.SampleRatio)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
	}
	if cfg.LogSpans {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(NewLogExporter(logger)))
	}
	providerOpts = append(providerOpts, opts...)

	provider := sdktrace.NewTracerProvider(providerOpts...)
	t := newTracer(provider, logger)
	t.provider = provider

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(t.propagator)
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		logger.Error("tracer error", zap.Error(err))
	}))

	logger.Info("tracer initialized",
		zap.String("service", cfg.ServiceName),
		zap.Float64("sample_ratio", cfg.SampleRatio),
		zap.Bool("log_spans", cfg.LogSpans),
	)

	return t, nil
}

// NewWithProvider wraps an existing provider without touching otel globals.
// Shutdown is the caller's responsibility.
func NewWithProvider(provider trace.TracerProvider, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return newTracer(provider, logger)
}

func newTracer(provider trace.TracerProvider, logger *zap.Logger) *Tracer {
	return &Tracer{
		tracer: provider.Tracer(instrumentationName),
		propagator: propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
		logger: logger,
	}
}

// Extract implements Handle.
func (t *Tracer) Extract(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return t.propagator.Extract(ctx, carrier)
}

// StartSpan implements Handle.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, *Span) {
	ctx, otelSpan := t.tracer.Start(ctx, name, opts...)
	span := newSpan(otelSpan, name)
	return ContextWithSpan(ctx, span), span
}

// Inject implements Handle. The injected context is derived from span alone.
func (t *Tracer) Inject(span *Span, carrier propagation.TextMapCarrier) {
	if span == nil {
		return
	}
	t.propagator.Inject(trace.ContextWithSpan(context.Background(), span.span), carrier)
}

// Shutdown flushes queued spans and stops the provider. It is a no-op for
// tracers built with NewWithProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing: shutdown provider: %w", err)
	}
	t.logger.Info("tracer shut down")
	return nil
}
