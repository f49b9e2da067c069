package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/telemetry"
)

// RetryStrategy selects how the delay between attempts grows.
type RetryStrategy int

const (
	RetryStrategyFixed RetryStrategy = iota
	RetryStrategyLinearBackoff
	RetryStrategyExpBackoff
)

func (s RetryStrategy) String() string {
	switch s {
	case RetryStrategyFixed:
		return "fixed"
	case RetryStrategyLinearBackoff:
		return "linearBackoff"
	case RetryStrategyExpBackoff:
		return "expBackoff"
	default:
		return "unknown"
	}
}

// RetryPolicy configures retry behavior for one request (spec §4.F step 8).
type RetryPolicy struct {
	MaxAttempts int
	Strategy    RetryStrategy
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy provides sensible defaults: three attempts, exponential
// backoff capped at config.DefaultMaxBackoff, jitter enabled.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Strategy:    RetryStrategyExpBackoff,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    config.DefaultMaxBackoff,
		Jitter:      true,
	}
}

// ShouldRetry decides, after a failed attempt, whether another is warranted.
// The executor is the caller that actually knows the request's idempotency
// and the classified UnifiedException; resilience stays free of that
// dependency by taking the decision as a predicate instead of importing the
// exceptions package.
type ShouldRetry func(err error, attempt int) bool

// Retry runs fn up to policy.MaxAttempts times, sleeping between attempts
// according to policy.Strategy. After each failed attempt, shouldRetry is
// consulted; returning false stops retrying immediately and surfaces that
// attempt's error unwrapped, distinguishing "retry declined" from "retries
// exhausted".
func Retry(ctx context.Context, policy RetryPolicy, shouldRetry ShouldRetry, fn func() error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt == policy.MaxAttempts {
			break
		}

		if shouldRetry != nil && !shouldRetry(lastErr, attempt) {
			return lastErr
		}

		delay := computeDelay(policy, attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded for %v: %w", policy.MaxAttempts, lastErr, config.ErrMaxRetriesExceeded)
}

func computeDelay(policy RetryPolicy, attempt int) time.Duration {
	var delay time.Duration
	switch policy.Strategy {
	case RetryStrategyFixed:
		delay = policy.BaseDelay
	case RetryStrategyLinearBackoff:
		delay = policy.BaseDelay * time.Duration(attempt)
	case RetryStrategyExpBackoff:
		delay = expBackoffDelay(policy.BaseDelay, policy.MaxDelay, attempt)
	default:
		delay = policy.BaseDelay
	}

	if policy.MaxDelay > 0 && delay > policy.MaxDelay {
		delay = policy.MaxDelay
	}
	if policy.Jitter {
		delay = applyJitter(delay)
	}
	return delay
}

// expBackoffDelay walks cenkalti/backoff/v5's ExponentialBackOff curve to the
// requested attempt. Its own randomization is disabled here because Retry
// applies a single shared jitter step across all three strategies.
func expBackoffDelay(base, max time.Duration, attempt int) time.Duration {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = max
	eb.Multiplier = 2.0
	eb.RandomizationFactor = 0

	var d time.Duration
	for i := 0; i < attempt; i++ {
		d = eb.NextBackOff()
	}
	return d
}

func applyJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	jitter := time.Duration(rand.Int63n(int64(d)/2 + 1))
	return d/2 + jitter
}

// RetryExecutor wraps Retry with structured logging and optional telemetry,
// the same dependency-injection shape CircuitBreaker uses via factory.go.
type RetryExecutor struct {
	policy           RetryPolicy
	shouldRetry      ShouldRetry
	logger           config.Logger
	telemetryEnabled bool
}

// NewRetryExecutor builds a RetryExecutor. A nil policy falls back to
// DefaultRetryPolicy.
func NewRetryExecutor(policy *RetryPolicy) *RetryExecutor {
	p := DefaultRetryPolicy()
	if policy != nil {
		p = *policy
	}
	return &RetryExecutor{
		policy:      p,
		shouldRetry: func(error, int) bool { return true },
		logger:      config.NoOpLogger{},
	}
}

// SetLogger installs the logger used for retry_start/retry_backoff/exhaustion
// events.
func (r *RetryExecutor) SetLogger(logger config.Logger) {
	r.logger = logger
}

// SetShouldRetry overrides the default always-retry predicate, letting a
// caller tie retries to request idempotency and exception classification.
func (r *RetryExecutor) SetShouldRetry(fn ShouldRetry) {
	r.shouldRetry = fn
}

// Execute runs fn under the executor's policy, logging a retry_start event
// up front, a retry_backoff event before each sleep, and a final success or
// exhaustion event.
func (r *RetryExecutor) Execute(ctx context.Context, operation string, fn func() error) error {
	r.logger.Info("Starting retry operation", map[string]interface{}{
		"operation":       "retry_start",
		"retry_operation": operation,
		"max_attempts":    r.policy.MaxAttempts,
		"initial_delay":   r.policy.BaseDelay.String(),
		"backoff_factor":  backoffFactorLabel(r.policy.Strategy),
	})

	start := time.Now()
	attempt := 0

	err := Retry(ctx, r.policy, func(retryErr error, a int) bool {
		attempt = a
		decision := r.shouldRetry(retryErr, a)
		if decision {
			delay := computeDelay(r.policy, a)
			r.logger.Debug("retry backoff", map[string]interface{}{
				"operation":       "retry_backoff",
				"retry_operation": operation,
				"attempt":         a,
				"delay_ms":        delay.Milliseconds(),
			})
			if r.telemetryEnabled {
				telemetry.Histogram("retry.backoff_ms", float64(delay.Milliseconds()),
					"operation", operation, "strategy", r.policy.Strategy.String())
			}
		}
		return decision
	}, fn)

	duration := time.Since(start)

	if err != nil {
		r.logger.Error("retry operation failed", map[string]interface{}{
			"operation":       "retry_exhausted",
			"retry_operation": operation,
			"attempts":        attempt,
			"duration_ms":     duration.Milliseconds(),
			"error":           err.Error(),
		})
		if r.telemetryEnabled {
			telemetry.Counter("retry.failures", "operation", operation, "error_type", fmt.Sprintf("%T", err))
			telemetry.Histogram("retry.duration_ms", float64(duration.Milliseconds()),
				"operation", operation, "status", "failure")
		}
		return err
	}

	r.logger.Info("retry operation succeeded", map[string]interface{}{
		"operation":       "retry_success",
		"retry_operation": operation,
		"attempts":        attempt,
		"duration_ms":     duration.Milliseconds(),
	})
	if r.telemetryEnabled {
		telemetry.Counter("retry.success", "operation", operation, "final_attempt", fmt.Sprintf("%d", attempt))
		telemetry.Histogram("retry.duration_ms", float64(duration.Milliseconds()),
			"operation", operation, "status", "success")
	}
	return nil
}

// backoffFactorLabel gives the log field a human-readable multiplier even
// though RetryPolicy tracks a strategy enum rather than a raw factor.
func backoffFactorLabel(strategy RetryStrategy) float64 {
	switch strategy {
	case RetryStrategyExpBackoff:
		return 2.0
	case RetryStrategyLinearBackoff:
		return 1.0
	default:
		return 0.0
	}
}

// RetryWithCircuitBreaker combines retry logic with circuit breaker
// admission control: each attempt first checks CanExecute, short-circuiting
// before fn runs once the breaker is open.
func RetryWithCircuitBreaker(ctx context.Context, policy RetryPolicy, cb *CircuitBreaker, shouldRetry ShouldRetry, fn func() error) error {
	return Retry(ctx, policy, shouldRetry, func() error {
		if !cb.CanExecute() {
			return config.ErrCircuitBreakerOpen
		}

		err := fn()
		if err != nil {
			cb.RecordFailure()
			return err
		}

		cb.RecordSuccess()
		return nil
	})
}
