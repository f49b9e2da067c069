package exceptions

import (
	"context"
	"errors"
	"fmt"

	"github.com/gomind-http/httpcore/config"
)

// transportFailure is the shape Classify recognizes without importing
// package transport, mirroring resilience.ShouldRetry's decoupling: the
// classifier depends on a capability, not a concrete type. transport.Error
// implements this.
type transportFailure interface {
	error
	TransportKind() string
	TransportStatusCode() int // -1 unless TransportKind() == "badResponse"
}

// ParseError wraps a parser failure so Classify can recognize it as
// PARSE_ERROR (spec §4.B step 6) without depending on package request.
type ParseError struct {
	Err error
}

func (p *ParseError) Error() string { return "parse error: " + p.Err.Error() }
func (p *ParseError) Unwrap() error { return p.Err }

// chainProtocolError marks a CPS handler contract violation (spec §4.B+):
// calling more than one of next/reject/resolve on one invocation, or
// recursing back into Execute for the same request (spec §9).
type chainProtocolError struct {
	reason string
}

func (c *chainProtocolError) Error() string { return "chain protocol violation: " + c.reason }

// NewChainProtocolError builds the error package interceptor and executor
// report for a handler-contract violation; Classify maps it to
// OPERATION_FAILED.
func NewChainProtocolError(reason string) error {
	return &chainProtocolError{reason: reason}
}

// Classify maps any failure from Transport, parser, interceptor, or
// scheduler into a UnifiedException, first-match-wins (spec §4.B).
// Classify never panics and never returns nil.
func Classify(err error, ctxLabel string, metadata map[string]any) *UnifiedException {
	if err == nil {
		return newException(TypeUnknown, CodeUnknownError, 0, "nil error classified", ctxLabel, metadata, nil)
	}

	// Step 1: already classified.
	var existing *UnifiedException
	if errors.As(err, &existing) {
		return existing
	}

	// Step 2: TransportError carrying a kind.
	var tf transportFailure
	if errors.As(err, &tf) {
		switch tf.TransportKind() {
		case "connectTimeout":
			return newException(TypeNetwork, CodeConnectTimeout, 0, err.Error(), ctxLabel, metadata, err)
		case "readTimeout":
			return newException(TypeNetwork, CodeReceiveTimeout, 0, err.Error(), ctxLabel, metadata, err)
		case "writeTimeout":
			return newException(TypeNetwork, CodeSendTimeout, 0, err.Error(), ctxLabel, metadata, err)
		case "connectionError":
			return newException(TypeNetwork, CodeConnectionError, 0, err.Error(), ctxLabel, metadata, err)
		case "cancelled":
			return newException(TypeOperation, CodeRequestCancelled, 0, err.Error(), ctxLabel, metadata, err)
		case "badResponse":
			return classifyByStatus(tf.TransportStatusCode(), err.Error(), ctxLabel, metadata, err)
		default:
			// fall through to the remaining steps for "unknown"
		}
	}

	// Step 3 is reached only through step 2's badResponse branch above; a
	// bare HTTP statusCode with no transport wrapper still needs a path, so
	// a *chainProtocolError and any other typed error continue to step 4+.
	var cp *chainProtocolError
	if errors.As(err, &cp) {
		return newException(TypeOperation, CodeOperationFailed, 0, cp.Error(), ctxLabel, metadata, err)
	}

	// Step 4: socket-level unreachable.
	if errors.Is(err, config.ErrUpstreamUnreachable) {
		return newException(TypeNetwork, CodeNetworkUnavailable, 0, err.Error(), ctxLabel, metadata, err)
	}

	// Step 5: generic timeout not bound to a transport stage.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, config.ErrTimeout) {
		return newException(TypeNetwork, CodeOperationTimeout, 0, err.Error(), ctxLabel, metadata, err)
	}

	// Step 6: parse/format failure.
	var pe *ParseError
	if errors.As(err, &pe) {
		return newException(TypeData, CodeParseError, 0, err.Error(), ctxLabel, metadata, err)
	}

	// Step 7: fallback.
	return newException(TypeUnknown, CodeUnknownError, 0, err.Error(), ctxLabel, metadata, err)
}

// classifyByStatus implements spec §4.B step 3.
func classifyByStatus(statusCode int, message, ctxLabel string, metadata map[string]any, original error) *UnifiedException {
	switch statusCode {
	case 400:
		return newException(TypeClient, CodeBadRequest, statusCode, message, ctxLabel, metadata, original)
	case 401:
		return newException(TypeAuth, CodeUnauthorized, statusCode, message, ctxLabel, metadata, original)
	case 403:
		return newException(TypeAuth, CodeForbidden, statusCode, message, ctxLabel, metadata, original)
	case 404:
		return newException(TypeClient, CodeNotFound, statusCode, message, ctxLabel, metadata, original)
	case 405:
		return newException(TypeClient, CodeMethodNotAllowed, statusCode, message, ctxLabel, metadata, original)
	case 408:
		return newException(TypeNetwork, CodeRequestTimeout, statusCode, message, ctxLabel, metadata, original)
	case 409:
		return newException(TypeClient, CodeConflict, statusCode, message, ctxLabel, metadata, original)
	case 422:
		return newException(TypeData, CodeValidationError, statusCode, message, ctxLabel, metadata, original)
	case 429:
		return newException(TypeClient, CodeTooManyRequests, statusCode, message, ctxLabel, metadata, original)
	case 500:
		return newException(TypeServer, CodeInternalServer, statusCode, message, ctxLabel, metadata, original)
	case 502:
		return newException(TypeServer, CodeBadGateway, statusCode, message, ctxLabel, metadata, original)
	case 503:
		return newException(TypeServer, CodeServiceUnavailable, statusCode, message, ctxLabel, metadata, original)
	case 504:
		return newException(TypeServer, CodeGatewayTimeout, statusCode, message, ctxLabel, metadata, original)
	default:
		if statusCode >= 400 && statusCode < 500 {
			return newException(TypeClient, CodeClientError, statusCode, message, ctxLabel, metadata, original)
		}
		if statusCode >= 500 {
			return newException(TypeServer, CodeServerError, statusCode, message, ctxLabel, metadata, original)
		}
		return newException(TypeUnknown, CodeUnknownError, statusCode, fmt.Sprintf("unexpected status %d: %s", statusCode, message), ctxLabel, metadata, original)
	}
}
