package telemetry

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	serviceName = "aider-runner"
	tracerName  = "github.com/cchalm/aider-runner"
)

// TelemetryConfig holds the configuration for telemetry
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string // host:port of an OTLP/HTTP collector
	Insecure     bool
	Version      string
}

// Provider manages the tracer used to record runner steps
type Provider struct {
	tracerProvider trace.TracerProvider
	shutdown       func(context.Context) error
}

// NewProvider creates a new telemetry provider. When telemetry is disabled the provider hands out no-op tracers
func NewProvider(ctx context.Context, config TelemetryConfig) (*Provider, error) {
	if !config.Enabled {
		log.Printf("Telemetry disabled")
		return NewNoopProvider(), nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.OTLPEndpoint)}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", config.Version),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Printf("Telemetry enabled, exporting traces to %s", config.OTLPEndpoint)
	return &Provider{tracerProvider: tp, shutdown: tp.Shutdown}, nil
}

// NewNoopProvider creates a provider that records nothing
func NewNoopProvider() *Provider {
	return &Provider{
		tracerProvider: noop.NewTracerProvider(),
		shutdown:       func(context.Context) error { return nil },
	}
}

// NewProviderFromTracerProvider wraps an existing tracer provider. The caller remains responsible for shutting it down
func NewProviderFromTracerProvider(tp trace.TracerProvider) *Provider {
	return &Provider{
		tracerProvider: tp,
		shutdown:       func(context.Context) error { return nil },
	}
}

// Tracer returns the tracer used for runner spans
func (p *Provider) Tracer() trace.Tracer {
	return p.tracerProvider.Tracer(tracerName)
}

// Shutdown flushes any buffered spans and shuts down the telemetry provider
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.shutdown(ctx)
	if err != nil {
		return fmt.Errorf("failed to shut down telemetry provider: %w", err)
	}
	return nil
}

// EndSpan records err on the span, if non-nil, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// NewRunID generates a new run UUID
func NewRunID() string {
	return uuid.New().String()
}
