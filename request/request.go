// Package request defines the immutable description of one HTTP call and
// its companion value types (Priority, Idempotency, CachePolicy,
// RetryPolicy, Response). A Request is a value plus a parser closure, not
// an object hierarchy (spec §9: "every request is a value plus a parser
// closure").
package request

import (
	"time"

	"github.com/gomind-http/httpcore/config"
)

// Method is one of the HTTP verbs this core resolves a Request against.
type Method string

const (
	MethodGET     Method = "GET"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodPATCH   Method = "PATCH"
	MethodHEAD    Method = "HEAD"
	MethodOPTIONS Method = "OPTIONS"
)

// Priority orders pending QueueEntries; smaller values are admitted first
// (spec §3, §4.E). The core implements exactly four levels — see
// DESIGN.md, Open Question (i).
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "CRITICAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityNormal:
		return "NORMAL"
	case PriorityLow:
		return "LOW"
	default:
		return "UNKNOWN"
	}
}

// Idempotency is a tri-state hint the retry logic keys on (spec §4.F step
// 8): explicit-no requests are never retried regardless of how
// transient-looking the failure is.
type Idempotency int

const (
	IdempotentInferred Idempotency = iota
	IdempotentYes
	IdempotentNo
)

// inferredIdempotentMethods mirrors spec §3: "inferred = method ∈ {GET,
// HEAD, PUT, DELETE, OPTIONS, TRACE}".
var inferredIdempotentMethods = map[Method]bool{
	MethodGET:     true,
	MethodHEAD:    true,
	MethodPUT:     true,
	MethodDELETE:  true,
	MethodOPTIONS: true,
	"TRACE":       true,
}

// IsIdempotent resolves the tri-state against m when the hint is
// IdempotentInferred.
func (i Idempotency) IsIdempotent(m Method) bool {
	switch i {
	case IdempotentYes:
		return true
	case IdempotentNo:
		return false
	default:
		return inferredIdempotentMethods[m]
	}
}

// CachePolicy controls whether a Request's response is cached and for how
// long (spec §3; DESIGN.md Open Question (ii): TTL is always a
// time.Duration, never a bare integer).
type CachePolicy struct {
	Enabled     bool
	TTL         time.Duration
	KeyOverride string
}

// RetryStrategy selects how the delay between Executor attempts grows. It
// mirrors resilience.RetryStrategy; kept as its own type so package request
// has no dependency on package resilience (the Executor is what bridges the
// two, spec §4.F step 8).
type RetryStrategy int

const (
	RetryStrategyFixed RetryStrategy = iota
	RetryStrategyLinearBackoff
	RetryStrategyExpBackoff
)

// RetryPolicy configures the Executor's retry loop for one Request (spec
// §3, §4.F step 8).
type RetryPolicy struct {
	MaxAttempts        int
	BaseDelay          time.Duration
	Strategy           RetryStrategy
	RetryableCodes     map[int]bool
	NonRetryableCodes  map[int]bool
}

// DefaultRetryPolicy mirrors resilience.DefaultRetryPolicy's shape at the
// request level: three attempts, exponential backoff, no explicit
// status-code overrides.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		Strategy:    RetryStrategyExpBackoff,
	}
}

// Request is an immutable description of one HTTP call (spec §3). It is
// never mutated after submission; the Executor clones it to attach retry
// metadata in a derived copy (see WithAttempt).
type Request struct {
	Method      Method
	Path        string
	QueryParams map[string]string
	Body        any
	Headers     map[string]string
	Timeouts    config.Timeouts

	CachePolicy CachePolicy
	RetryPolicy RetryPolicy
	Priority    Priority
	Idempotent  Idempotency

	// Parser converts the raw response body into a typed result. A nil
	// Parser means "raw": the body is returned as []byte.
	Parser func(body []byte) (any, error)

	// HandleParseError is consulted when Parser returns an error (spec
	// §4.F step 6): returning (value, true) recovers the call with value
	// as Data instead of failing it with PARSE_ERROR.
	HandleParseError func(body []byte, err error) (any, bool)

	// CustomInterceptors scopes an additional ordered list of interceptor
	// names to this Request only (spec §3).
	CustomInterceptors []string

	// AttemptCount tracks how many Transport attempts this logical request
	// has made; only the Executor's internal clone (WithAttempt) ever has
	// AttemptCount > 0.
	AttemptCount int

	// Context carries the caller-supplied diagnostic string and Metadata
	// carries the caller-supplied mapping (spec §7: "preserve a context
	// string and a metadata mapping supplied by the caller at execute
	// time").
	Context  string
	Metadata map[string]any
}

// WithAttempt returns a shallow copy of r with AttemptCount incremented,
// satisfying the invariant that a Request is never mutated after submission
// (spec §3).
func (r Request) WithAttempt() Request {
	clone := r
	clone.AttemptCount++
	return clone
}

// IsIdempotent resolves r's idempotency hint against its method.
func (r Request) IsIdempotent() bool {
	return r.Idempotent.IsIdempotent(r.Method)
}

// IsCacheable reports whether the request's CachePolicy enables caching.
// It does not look at the method; body/query resolution is ResolvedBody's.
func (r Request) IsCacheable() bool {
	return r.CachePolicy.Enabled
}

// ResolvedBody implements spec §3's body/queryParams resolution rule.
func (r Request) ResolvedBody() (body any, queryParams map[string]string) {
	switch r.Method {
	case MethodGET, MethodDELETE:
		return nil, r.QueryParams
	default:
		if r.Body == nil {
			return r.QueryParams, nil
		}
		return r.Body, r.QueryParams
	}
}
