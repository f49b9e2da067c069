// Package transport defines the minimal capability the core consumes to
// perform one HTTP round-trip (spec §6), plus one concrete net/http-backed
// implementation and a circuit-breaker-wrapped decorator.
package transport

import "context"

// ResolvedRequest is what the Executor hands to Transport.Execute after
// running the request-stage interceptor chain: a fully resolved call with
// no further policy decisions left (spec §6).
type ResolvedRequest struct {
	Method  string
	URL     string
	Body    []byte
	Headers map[string]string

	ConnectTimeoutMs int64
	ReadTimeoutMs    int64
	WriteTimeoutMs   int64
}

// RawResponse is Transport's success result (spec §6).
type RawResponse struct {
	StatusCode int
	BodyBytes  []byte
	Headers    map[string]string
	DurationMs int64
}

// Kind enumerates the failure shapes Transport can report (spec §6).
type Kind string

const (
	KindConnectTimeout  Kind = "connectTimeout"
	KindReadTimeout     Kind = "readTimeout"
	KindWriteTimeout    Kind = "writeTimeout"
	KindConnectionError Kind = "connectionError"
	KindCancelled       Kind = "cancelled"
	KindBadResponse     Kind = "badResponse"
	KindUnknown         Kind = "unknown"
)

// Error is Transport's classified failure shape (spec §6:
// "TransportError = {kind, message, originalError}"). It implements the
// transportFailure capability package exceptions' Classify recognizes,
// without either package importing the other's concrete type.
type Error struct {
	Kind       Kind
	StatusCode int // only meaningful when Kind == KindBadResponse
	Body       []byte
	Headers    map[string]string // only populated when Kind == KindBadResponse
	Message    string
	Original   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Original != nil {
		return e.Original.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Original }

// TransportKind satisfies exceptions' decoupled classification capability.
func (e *Error) TransportKind() string { return string(e.Kind) }

// TransportStatusCode satisfies exceptions' decoupled classification
// capability; -1 unless Kind == KindBadResponse.
func (e *Error) TransportStatusCode() int {
	if e.Kind != KindBadResponse {
		return -1
	}
	return e.StatusCode
}

// CancelToken lets the Executor ask an in-flight Transport call to abort
// (spec §4.E "Cancellation", §5). Transport implementations watch Done()
// the same way they'd watch ctx.Done().
type CancelToken interface {
	Done() <-chan struct{}
	Err() error
}

// Transport performs one HTTP round-trip (spec §6). Implementations never
// retry internally; retry is the Executor's concern (spec §4.F step 8).
type Transport interface {
	Execute(ctx context.Context, req ResolvedRequest, cancel CancelToken) (*RawResponse, error)
}
