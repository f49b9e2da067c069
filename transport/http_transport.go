package transport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gomind-http/httpcore/telemetry"
)

// HTTPTransport is the real net/http-backed Transport implementation, its
// *http.Client built by telemetry.NewTracedHTTPClientWithTransport so every
// round-trip carries the same trace-context propagation gomind's own
// service-to-service calls get (telemetry/http.go).
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport builds an HTTPTransport. connectTimeout bounds dial time
// via a custom net.Dialer (spec §6's {connect, read, write} timeout triple
// maps onto dialer timeout + a per-call context deadline from the request's
// read timeout in Execute + no dedicated write deadline, since net/http has
// no separate write-phase timeout knob; the http.Client has no Timeout).
func NewHTTPTransport(connectTimeout time.Duration) *HTTPTransport {
	dialer := &net.Dialer{Timeout: connectTimeout}
	base := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}
	return &HTTPTransport{
		client: telemetry.NewTracedHTTPClientWithTransport(base),
	}
}

// Execute performs one HTTP round-trip, classifying any failure into an
// *Error per spec §6.
func (t *HTTPTransport) Execute(ctx context.Context, req ResolvedRequest, cancel CancelToken) (*RawResponse, error) {
	if req.ReadTimeoutMs > 0 {
		var innerCancel context.CancelFunc
		ctx, innerCancel = context.WithTimeout(ctx, time.Duration(req.ReadTimeoutMs)*time.Millisecond)
		defer innerCancel()
	}
	if cancel != nil {
		var innerCancel context.CancelFunc
		ctx, innerCancel = context.WithCancel(ctx)
		defer innerCancel()
		go func() {
			select {
			case <-cancel.Done():
				innerCancel()
			case <-ctx.Done():
			}
		}()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, Message: "failed to build request", Original: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := t.client.Do(httpReq)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return nil, classifyHTTPError(ctx, cancel, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindReadTimeout, Message: "failed reading response body", Original: err}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	if resp.StatusCode >= 400 {
		return nil, &Error{
			Kind:       KindBadResponse,
			StatusCode: resp.StatusCode,
			Body:       body,
			Headers:    headers,
			Message:    resp.Status,
		}
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		BodyBytes:  body,
		Headers:    headers,
		DurationMs: duration,
	}, nil
}

func classifyHTTPError(ctx context.Context, cancel CancelToken, err error) *Error {
	if cancel != nil {
		select {
		case <-cancel.Done():
			return &Error{Kind: KindCancelled, Message: "request cancelled", Original: err}
		default:
		}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: KindReadTimeout, Message: "read deadline exceeded", Original: err}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &Error{Kind: KindCancelled, Message: "request cancelled", Original: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindConnectTimeout, Message: "connect timeout", Original: err}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &Error{Kind: KindConnectionError, Message: "connection error", Original: err}
	}

	return &Error{Kind: KindUnknown, Message: err.Error(), Original: err}
}
