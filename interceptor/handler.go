package interceptor

import (
	"sync"

	"github.com/gomind-http/httpcore/request"
)

type action int

const (
	actionNone action = iota
	actionNext
	actionReject
	actionResolve
)

// Handler is the CPS-style object passed to an interceptor's stage func
// (spec §4.C: "a continuation... next(value)... reject(exception)...
// resolve(response)"). Exactly one of Next/Reject/Resolve may be called
// per invocation; a second call is recorded as a protocol violation rather
// than applied (spec §9: "calling more than one of these on a single
// invocation is an error; the chain must detect and classify it as
// OPERATION_FAILED").
//
// Resolve is accepted at every stage, not only response/error: the end to
// end scenario of a request-stage interceptor short-circuiting with a
// synthetic response (spec §8, scenario 7) requires it there too.
type Handler struct {
	mu            sync.Mutex
	decided       bool
	multipleCalls bool

	chosen      action
	nextRequest request.Request
	nextExc     error
	resolved    *request.Response
	rejected    error
}

func newHandler() *Handler {
	return &Handler{}
}

func (h *Handler) record(a action) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.decided {
		h.multipleCalls = true
		return false
	}
	h.decided = true
	h.chosen = a
	return true
}

// Next passes req through to the following request-stage interceptor.
func (h *Handler) Next(req request.Request) {
	if h.record(actionNext) {
		h.nextRequest = req
	}
}

// NextResponse passes resp through to the following response-stage
// interceptor.
func (h *Handler) NextResponse(resp *request.Response) {
	if h.record(actionNext) {
		h.resolved = resp
	}
}

// NextError passes exc through to the following error-stage interceptor.
func (h *Handler) NextError(exc error) {
	if h.record(actionNext) {
		h.nextExc = exc
	}
}

// Reject short-circuits the chain with a classified failure.
func (h *Handler) Reject(exc error) {
	if h.record(actionReject) {
		h.rejected = exc
	}
}

// Resolve short-circuits the chain with a synthetic success response.
func (h *Handler) Resolve(resp *request.Response) {
	if h.record(actionResolve) {
		h.resolved = resp
	}
}

func (h *Handler) snapshot() (action, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.multipleCalls {
		return actionNone, true
	}
	return h.chosen, false
}
