package resilience

import (
	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/telemetry"
)

// ResilienceDependencies holds optional dependencies (follows framework pattern)
type ResilienceDependencies struct {
	Logger    config.Logger
	Telemetry config.Telemetry
}

// Helper function to detect global telemetry availability
func globalTelemetryAvailable() bool {
	// Check if telemetry module has been initialized globally
	// This follows the same pattern as core module's global registry
	return telemetry.GetRegistry() != nil
}

// CreateCircuitBreaker creates a circuit breaker with proper dependency injection
func CreateCircuitBreaker(name string, deps ResilienceDependencies) (*CircuitBreaker, error) {
	cbConfig := DefaultConfig()
	cbConfig.Name = name

	// Ensure logger is available
	if deps.Logger != nil {
		if aware, ok := deps.Logger.(config.ComponentAwareLogger); ok {
			cbConfig.Logger = aware.WithComponent("framework/resilience")
		} else {
			cbConfig.Logger = deps.Logger
		}
	} else {
		// Create default production logger
		cbConfig.Logger = config.NewProductionLogger(
			config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			config.DevelopmentConfig{},
			"circuit-breaker",
		).(config.ComponentAwareLogger).WithComponent("framework/resilience")
	}

	// Auto-detect and enable telemetry if available
	if deps.Telemetry != nil {
		cbConfig.Metrics = NewTelemetryMetrics()
		cbConfig.Logger.Info("Telemetry integration enabled for circuit breaker", map[string]interface{}{
			"operation": "telemetry_integration",
			"name":      name,
			"component": "circuit_breaker",
		})
	} else {
		// Check if telemetry module is available globally
		if globalTelemetryAvailable() {
			cbConfig.Metrics = NewTelemetryMetrics()
			cbConfig.Logger.Info("Global telemetry detected and enabled", map[string]interface{}{
				"operation": "telemetry_auto_detection",
				"name":      name,
				"component": "circuit_breaker",
			})
		}
	}

	cbConfig.Logger.Info("Creating circuit breaker", map[string]interface{}{
		"operation":        "circuit_breaker_creation",
		"name":             name,
		"error_threshold":  cbConfig.ErrorThreshold,
		"volume_threshold": cbConfig.VolumeThreshold,
	})

	return NewCircuitBreaker(cbConfig)
}

// CreateRetryExecutor creates a retry executor with proper dependency injection
func CreateRetryExecutor(deps ResilienceDependencies) *RetryExecutor {
	executor := NewRetryExecutor(nil)

	// Inject logger
	if deps.Logger != nil {
		if aware, ok := deps.Logger.(config.ComponentAwareLogger); ok {
			executor.SetLogger(aware.WithComponent("framework/resilience"))
		} else {
			executor.SetLogger(deps.Logger)
		}
	} else {
		// Create default production logger
		logger := config.NewProductionLogger(
			config.LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stdout",
			},
			config.DevelopmentConfig{},
			"retry-executor",
		).(config.ComponentAwareLogger).WithComponent("framework/resilience")
		executor.SetLogger(logger)
	}

	// Enable telemetry if available
	if deps.Telemetry != nil || globalTelemetryAvailable() {
		executor.telemetryEnabled = true
		executor.logger.Info("Telemetry integration enabled for retry executor", map[string]interface{}{
			"operation": "telemetry_integration",
			"component": "retry_executor",
		})
	}

	return executor
}

// WithLogger creates dependency injection option
func WithLogger(logger config.Logger) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Logger = logger
	}
}

// WithTelemetry creates dependency injection option
func WithTelemetry(telemetry config.Telemetry) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Telemetry = telemetry
	}
}