// Package telemetry provides distributed tracing HTTP instrumentation.
//
// This file provides the traced *http.Client this module's Transport
// implementation is built on, using OpenTelemetry's otelhttp transport
// wrapper for W3C TraceContext propagation.
//
// IMPORTANT: spans are recorded only once a TracerProvider is installed,
// either by telemetry.NewLocalProvider() (in-process, no exporter) or by the
// caller's own otel.SetTracerProvider. telemetry.Initialize() alone sets up
// metrics only. Without a provider, otelhttp uses a no-op tracer — safe, but
// no spans are recorded.
package telemetry

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewTracedHTTPClientWithTransport creates a traced HTTP client with a custom
// transport.
//
// This is a convenience function that creates a traced client with connection
// pooling configured for service-to-service communication.
//
// Parameters:
//   - transport: Custom transport configuration. If nil, creates a default pooled transport.
//
// Example:
//
//	// Create with custom transport settings
//	transport := &http.Transport{
//	    MaxIdleConns:        100,
//	    MaxIdleConnsPerHost: 10,
//	    IdleConnTimeout:     90 * time.Second,
//	}
//	client := telemetry.NewTracedHTTPClientWithTransport(transport)
func NewTracedHTTPClientWithTransport(transport *http.Transport) *http.Client {
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DisableKeepAlives:   false,
			ForceAttemptHTTP2:   true,
		}
	}

	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
	}
}
