// Package interceptor implements the ordered request/response/error chain
// (spec §4.C). Each Interceptor is a value describing which of the three
// stages it supports; the Chain is a mutable, name-keyed registry plus a
// separately maintained insertion sequence — the same map-plus-ordered-
// snapshot shape gomind's telemetry registry uses for metric declarations,
// generalized here to interceptor slots.
package interceptor

import (
	"time"

	"github.com/gomind-http/httpcore/request"
)

// Stage identifies which leg of a call an interceptor runs on.
type Stage string

const (
	StageRequest  Stage = "request"
	StageResponse Stage = "response"
	StageError    Stage = "error"
)

// RequestFunc mutates or short-circuits the outbound request (spec §4.C:
// "request-stage interceptors run in ascending priority order").
type RequestFunc func(req request.Request, h *Handler)

// ResponseFunc observes or rewrites a successful response (spec §4.C:
// "response-stage interceptors run in descending priority order").
type ResponseFunc func(resp *request.Response, h *Handler)

// ErrorFunc observes, rewrites, or recovers from a classified failure
// (spec §4.C: "error-stage interceptors run in ascending priority order").
type ErrorFunc func(exc error, h *Handler)

// Interceptor is the value registered under a name. A nil stage func means
// the interceptor does not support that stage; the chain skips that stage
// for it without counting an invocation (spec §4.C: "the chain skips
// stages the interceptor does not implement").
type Interceptor struct {
	OnRequest  RequestFunc
	OnResponse ResponseFunc
	OnError    ErrorFunc

	// Priority orders this interceptor relative to others at the same
	// stage; ties are broken by registration order.
	Priority int

	// Timeout bounds a single stage invocation. Zero falls back to
	// DefaultInterceptorTimeout.
	Timeout time.Duration

	// ContinueOnError controls what happens when this interceptor's
	// invocation times out (spec §4.C): true skips it and keeps the
	// pre-stage value; false rejects the whole chain.
	ContinueOnError bool

	// Version supports RegistrationStrategy VERSION_BASED: a re-register
	// only replaces the existing slot if Version's semver tuple is
	// strictly greater (spec §4.C).
	Version string
}

func (ic Interceptor) supports(stage Stage) bool {
	switch stage {
	case StageRequest:
		return ic.OnRequest != nil
	case StageResponse:
		return ic.OnResponse != nil
	case StageError:
		return ic.OnError != nil
	default:
		return false
	}
}

func (ic Interceptor) effectiveTimeout() time.Duration {
	if ic.Timeout > 0 {
		return ic.Timeout
	}
	return DefaultInterceptorTimeout
}

// DefaultInterceptorTimeout bounds a stage invocation absent an explicit
// Interceptor.Timeout.
const DefaultInterceptorTimeout = 5 * time.Second

// RegistrationStrategy governs what Register does when name already exists
// (spec §4.C).
type RegistrationStrategy int

const (
	// StrategyStrict fails registration if name is already registered.
	StrategyStrict RegistrationStrategy = iota
	// StrategyReplace unregisters the existing slot, then inserts.
	StrategyReplace
	// StrategySkip no-ops (keeps the existing slot) on a duplicate name.
	StrategySkip
	// StrategyVersionBased replaces iff the new Version is semver-greater
	// than the existing slot's Version.
	StrategyVersionBased
)

// StageStats accumulates per-interceptor, per-stage counters (spec §4.C).
type StageStats struct {
	TotalInvocations int64
	Successes        int64
	Failures         int64
	Timeouts         int64
	TotalDuration     time.Duration
}
