package executor

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/request"
)

// retryDelay computes the sleep before the next attempt (spec §4.F step
// 8): a non-zero override (429's Retry-After) wins outright; otherwise the
// delay follows policy.Strategy, clamped to config.DefaultMaxBackoff, with
// jitter added uniformly in [0, 100ms]. expBackoff walks
// cenkalti/backoff/v5's curve to the requested attempt the same way
// resilience.expBackoffDelay does, kept as its own small copy here because
// request.RetryPolicy and resilience.RetryPolicy are deliberately distinct
// types (package request must not import package resilience) and because
// the 429 override has no equivalent in resilience.Retry's delay model.
func retryDelay(policy request.RetryPolicy, attempt int, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}

	base := policy.BaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	var delay time.Duration
	switch policy.Strategy {
	case request.RetryStrategyFixed:
		delay = base
	case request.RetryStrategyLinearBackoff:
		delay = base * time.Duration(attempt)
	default: // request.RetryStrategyExpBackoff
		delay = expBackoffDelay(base, config.DefaultMaxBackoff, attempt)
	}

	if delay > config.DefaultMaxBackoff {
		delay = config.DefaultMaxBackoff
	}
	return delay + time.Duration(rand.Int63n(101))*time.Millisecond
}

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
