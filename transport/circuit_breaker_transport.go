package transport

import (
	"context"

	"github.com/gomind-http/httpcore/config"
)

// CircuitBreakerTransport wraps any Transport with circuit breaker
// protection, grounded on gomind's InterfaceBasedCircuitBreakerTransport
// (ui/circuit_breaker_transport.go): delegate everything to the underlying
// Transport, but gate the call through an injected config.CircuitBreaker so
// a failing downstream short-circuits future calls instead of piling up
// timeouts.
type CircuitBreakerTransport struct {
	underlying Transport
	breaker    config.CircuitBreaker
}

// NewCircuitBreakerTransport wraps underlying with breaker.
func NewCircuitBreakerTransport(underlying Transport, breaker config.CircuitBreaker) *CircuitBreakerTransport {
	return &CircuitBreakerTransport{underlying: underlying, breaker: breaker}
}

// Execute runs the call through the circuit breaker. An open circuit
// returns config.ErrCircuitBreakerOpen immediately without invoking the
// underlying Transport.
func (t *CircuitBreakerTransport) Execute(ctx context.Context, req ResolvedRequest, cancel CancelToken) (*RawResponse, error) {
	var resp *RawResponse
	err := t.breaker.Execute(ctx, func() error {
		var execErr error
		resp, execErr = t.underlying.Execute(ctx, req, cancel)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
