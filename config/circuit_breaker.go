package config

import (
	"context"
	"time"
)

// CircuitBreaker provides circuit breaker functionality for fault tolerance.
// Implementations protect the executor against cascading Transport failures
// by temporarily short-circuiting calls once a failure threshold is reached.
// The concrete implementation lives in package resilience; this interface
// exists so executor and transport depend only on the contract.
type CircuitBreaker interface {
	// Execute runs fn with circuit breaker protection. If the circuit is
	// open it returns an error immediately without calling fn.
	Execute(ctx context.Context, fn func() error) error

	// ExecuteWithTimeout runs fn with both circuit breaker protection and a
	// timeout, useful for Transport calls that might hang.
	ExecuteWithTimeout(ctx context.Context, timeout time.Duration, fn func() error) error

	// GetState returns "closed", "open", or "half-open".
	GetState() string

	// GetMetrics returns current counters for monitoring.
	GetMetrics() map[string]interface{}

	// Reset manually restores the closed state and clears counters.
	Reset()

	// CanExecute reports whether the breaker would currently allow a call.
	CanExecute() bool
}
