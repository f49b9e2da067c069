/*
Package telemetry provides the OpenTelemetry wiring this module's HTTP
client core reports through: traced transports, a process-wide metrics
registry, and a simple Counter/Histogram/Gauge API on top of it.

Architecture Overview:

The telemetry package has a three-layer architecture:

1. Simple API Layer - Developer-facing functions (Emit, Counter, Histogram, Gauge)
2. Registry Layer - Thread-safe global registry with lifecycle management
3. Provider Layer - OpenTelemetry integration for actual metric/trace export

Thread Safety:

All public functions in this package are thread-safe and can be called
concurrently from multiple goroutines:
  - atomic.Value for lock-free reads of the global registry
  - sync.Once for one-time initialization
  - sync.Map for concurrent metric registration and gauge state

Usage:

Initialize once, against a meter name:

	telemetry.Initialize("httpcore")

Or, when nothing has installed OTel SDK providers yet (no collector to
export to), NewLocalProvider does both: it installs exporter-less
TracerProvider/MeterProvider globals and calls Initialize for you.

	provider, err := telemetry.NewLocalProvider("httpcore")
	defer provider.Shutdown(context.Background())

Then emit metrics from anywhere:

	telemetry.Counter("requests.total", "status", "success")
	telemetry.Histogram("latency.ms", 123.5, "endpoint", "/api")

Both Counter and Histogram (and Gauge, Emit) are no-ops until Initialize
or NewLocalProvider has run — they read the global registry through
GetRegistry and silently return if it is still nil.
*/
package telemetry
