package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// LocalProvider is an in-process OpenTelemetry SDK setup: a real
// TracerProvider and MeterProvider with no remote exporter attached, so
// otel.Tracer/otel.Meter calls throughout the framework (and the Simple API
// in registry.go) produce real spans and instruments instead of the global
// no-op default, without requiring an OTLP collector to be reachable. A
// caller that does have a collector should build its own exporter-backed
// providers with otel.SetTracerProvider/otel.SetMeterProvider instead of
// calling NewLocalProvider (compare gomind's NewOTelProvider in
// telemetry/otel.go, which wires OTLP/HTTP exporters for both signals).
type LocalProvider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
}

// NewLocalProvider installs process-local trace and metric providers under
// serviceName and registers them as the OTel globals, then wires this
// package's Registry against the same meter name.
func NewLocalProvider(serviceName string) (*LocalProvider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}

	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider()

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	Initialize(serviceName)

	return &LocalProvider{
		tracerProvider: tp,
		meterProvider:  mp,
		tracer:         tp.Tracer(serviceName),
	}, nil
}

// Tracer returns the tracer this provider installed.
func (p *LocalProvider) Tracer() trace.Tracer { return p.tracer }

// Shutdown flushes and stops both providers. Safe to call once; gomind's own
// OTelProvider.Shutdown guards this with a sync.Once, which callers of
// LocalProvider should do themselves if Shutdown might be called twice.
func (p *LocalProvider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down tracer provider: %w", err)
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down meter provider: %w", err)
	}
	return nil
}
