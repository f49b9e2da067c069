package config

import (
	"context"
	"time"
)

// Logger is the minimal logging capability consumed from an external
// collaborator (spec §6: "strictly advisory; failures in the logger must
// not affect the core"). Every call site treats a nil Logger the same as a
// NoOpLogger.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	InfoWithContext(ctx context.Context, msg string, fields map[string]interface{})
	ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{})
	WarnWithContext(ctx context.Context, msg string, fields map[string]interface{})
	DebugWithContext(ctx context.Context, msg string, fields map[string]interface{})
}

// ComponentAwareLogger extends Logger with a component tag, letting a single
// logger implementation be reused across scheduler/cache/interceptor/executor
// while keeping structured logs filterable by component.
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// Telemetry is the optional metrics/tracing capability. Implementations are
// expected to be backed by an injected go.opentelemetry.io/otel Meter/Tracer;
// the core never constructs an exporter itself (spec §1 Non-goals).
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Clock abstracts time so the cache's TTL enforcement and the executor's
// backoff sleeps can be driven deterministically in tests; the scheduler's
// sweeper reads the wall clock directly (spec §6: "Clock.now() -> timestamp,
// Clock.sleep(duration) -> suspension").
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the production Clock backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ConfigSource is the contract consumed at request-resolution time (spec
// §6): "ConfigSource.baseUrl(), defaultTimeouts(), defaultHeaders()".
type ConfigSource interface {
	BaseURL() string
	DefaultTimeouts() Timeouts
	DefaultHeaders() map[string]string
}

// Timeouts mirrors the per-request {connect, read, write} timeout triple.
type Timeouts struct {
	Connect time.Duration
	Read    time.Duration
	Write   time.Duration
}
