package interceptor

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/request"
)

type slot struct {
	name        string
	interceptor Interceptor
	enabled     bool
	insertSeq   int64

	stats [3]stageCounters // indexed by stageIndex(Stage)
}

type stageCounters struct {
	invocations atomic.Int64
	successes   atomic.Int64
	failures    atomic.Int64
	timeouts    atomic.Int64
	durationNs  atomic.Int64
}

func stageIndex(s Stage) int {
	switch s {
	case StageRequest:
		return 0
	case StageResponse:
		return 1
	default:
		return 2
	}
}

func (sl *slot) record(stage Stage, d time.Duration, outcome string) {
	c := &sl.stats[stageIndex(stage)]
	c.invocations.Add(1)
	c.durationNs.Add(int64(d))
	switch outcome {
	case "success":
		c.successes.Add(1)
	case "failure":
		c.failures.Add(1)
	case "timeout":
		c.timeouts.Add(1)
	}
}

// Stats returns a snapshot of this interceptor's per-stage counters.
func (sl *slot) Stats(stage Stage) StageStats {
	c := &sl.stats[stageIndex(stage)]
	return StageStats{
		TotalInvocations: c.invocations.Load(),
		Successes:        c.successes.Load(),
		Failures:         c.failures.Load(),
		Timeouts:         c.timeouts.Load(),
		TotalDuration:    time.Duration(c.durationNs.Load()),
	}
}

// Chain is the ordered, name-keyed interceptor registry (spec §4.C). It
// uses a single writer-preference lock for mutations and snapshots the
// ordered slot list at the start of each chain run so concurrent reads
// (running a chain) never block on each other (spec §5).
type Chain struct {
	mu            sync.RWMutex
	slots         map[string]*slot
	insertSeq     int64
	explicitOrder []string // nil: compute order from priority
}

// NewChain builds an empty Chain.
func NewChain() *Chain {
	return &Chain{slots: make(map[string]*slot)}
}

// Register installs name under strategy (spec §4.C). StrategyStrict fails
// on a duplicate name; StrategyReplace unregisters then inserts;
// StrategySkip no-ops on a duplicate; StrategyVersionBased replaces only
// if ic.Version is semver-greater than the existing slot's.
func (c *Chain) Register(name string, ic Interceptor, strategy RegistrationStrategy) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registerLocked(name, ic, strategy)
}

func (c *Chain) registerLocked(name string, ic Interceptor, strategy RegistrationStrategy) error {
	existing, exists := c.slots[name]
	if exists {
		switch strategy {
		case StrategyStrict:
			return config.NewFrameworkError("interceptor.Register", "interceptor", fmt.Errorf("%w: %q already registered", config.ErrInvalidConfiguration, name))
		case StrategySkip:
			return nil
		case StrategyVersionBased:
			if !versionGreater(ic.Version, existing.interceptor.Version) {
				return nil
			}
		case StrategyReplace:
			// fall through to overwrite
		}
	}
	c.insertSeq++
	c.slots[name] = &slot{
		name:        name,
		interceptor: ic,
		enabled:     true,
		insertSeq:   c.insertSeq,
	}
	return nil
}

// Unregister removes name. Idempotent: removing an unknown name is a no-op
// (spec §4.C).
func (c *Chain) Unregister(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.slots, name)
	return nil
}

// Enable/Disable toggle whether name participates in chain runs.
func (c *Chain) Enable(name string) error  { return c.setEnabled(name, true) }
func (c *Chain) Disable(name string) error { return c.setEnabled(name, false) }

func (c *Chain) setEnabled(name string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.slots[name]
	if !ok {
		return config.ErrNotFound
	}
	sl.enabled = enabled
	return nil
}

// UpdateConfig replaces the Timeout/ContinueOnError/Priority of an already
// registered interceptor without touching its stage funcs or Version.
func (c *Chain) UpdateConfig(name string, timeout time.Duration, continueOnError bool, priority int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	sl, ok := c.slots[name]
	if !ok {
		return config.ErrNotFound
	}
	sl.interceptor.Timeout = timeout
	sl.interceptor.ContinueOnError = continueOnError
	sl.interceptor.Priority = priority
	return nil
}

// SetExecutionOrder replaces the computed priority ordering with an
// explicit name list (spec §4.C); every name must already be registered.
func (c *Chain) SetExecutionOrder(names []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range names {
		if _, ok := c.slots[n]; !ok {
			return config.NewFrameworkError("interceptor.SetExecutionOrder", "interceptor", fmt.Errorf("%w: unknown interceptor %q", config.ErrInvalidConfiguration, n))
		}
	}
	c.explicitOrder = append([]string(nil), names...)
	return nil
}

// RegisterBatch registers every entry in items under strategy. Unless
// continueOnError, the whole batch is transactional: on any failure every
// successful registration already applied in this call is rolled back
// (spec §4.C).
func (c *Chain) RegisterBatch(items map[string]Interceptor, strategy RegistrationStrategy, continueOnError bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	type applied struct {
		name     string
		previous *slot // nil if name had no prior registration
	}
	var done []applied
	var firstErr error

	for name, ic := range items {
		prev := c.slots[name] // nil if absent
		if err := c.registerLocked(name, ic, strategy); err != nil {
			if !continueOnError {
				firstErr = err
				break
			}
			continue
		}
		done = append(done, applied{name: name, previous: prev})
	}

	if firstErr != nil {
		for _, a := range done {
			if a.previous != nil {
				c.slots[a.name] = a.previous
			} else {
				delete(c.slots, a.name)
			}
		}
		return firstErr
	}
	return nil
}

// WithTemporary installs name for the duration of body, restoring whatever
// was there before (or removing it if it was unregistered) once body
// returns — guaranteed via defer, grounded on resilience.CircuitBreaker's
// token-release-via-defer discipline.
func (c *Chain) WithTemporary(name string, ic Interceptor, body func() error) error {
	c.mu.Lock()
	previous := c.slots[name] // nil if absent
	c.insertSeq++
	c.slots[name] = &slot{name: name, interceptor: ic, enabled: true, insertSeq: c.insertSeq}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if previous != nil {
			c.slots[name] = previous
		} else {
			delete(c.slots, name)
		}
	}()

	return body()
}

// Stats returns a snapshot of name's per-stage counters.
func (c *Chain) Stats(name string, stage Stage) (StageStats, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sl, ok := c.slots[name]
	if !ok {
		return StageStats{}, false
	}
	return sl.Stats(stage), true
}

// snapshot returns the slots participating in stage, in execution order,
// without holding the lock during the run itself (spec §5: "allows
// concurrent reads during chain execution by snapshotting the ordered
// slot list at the start of a chain run").
func (c *Chain) snapshot(stage Stage) []*slot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.explicitOrder != nil {
		ordered := make([]*slot, 0, len(c.explicitOrder))
		for _, name := range c.explicitOrder {
			sl, ok := c.slots[name]
			if ok && sl.enabled && sl.interceptor.supports(stage) {
				ordered = append(ordered, sl)
			}
		}
		return ordered
	}

	var participants []*slot
	for _, sl := range c.slots {
		if sl.enabled && sl.interceptor.supports(stage) {
			participants = append(participants, sl)
		}
	}

	descending := stage == StageResponse
	sort.Slice(participants, func(i, j int) bool {
		pi, pj := participants[i].interceptor.Priority, participants[j].interceptor.Priority
		if pi != pj {
			if descending {
				return pi > pj
			}
			return pi < pj
		}
		return participants[i].insertSeq < participants[j].insertSeq
	})
	return participants
}

// RequestOutcome is the result of running the request stage: exactly one
// of Resolve/Err is set, or neither (continue with Request).
type RequestOutcome struct {
	Request request.Request
	Resolve *request.Response
	Err     *exceptions.UnifiedException
}

// RunRequest executes the request-stage chain in ascending-priority order
// (spec §4.C).
func (c *Chain) RunRequest(ctx context.Context, req request.Request) RequestOutcome {
	current := req
	for _, sl := range c.snapshot(StageRequest) {
		h := newHandler()
		result := invoke(ctx, sl, StageRequest, func() {
			sl.interceptor.OnRequest(current, h)
		}, h.snapshot)

		switch result.kind {
		case outcomeTimeoutSkip:
			continue // keep current, move to the next interceptor
		case outcomeTimeoutReject:
			return RequestOutcome{Err: timeoutException(sl.name, StageRequest)}
		}

		switch result.action {
		case actionNext:
			current = h.nextRequest
		case actionResolve:
			return RequestOutcome{Resolve: h.resolved}
		case actionReject:
			return RequestOutcome{Err: exceptions.Classify(h.rejected, sl.name, nil)}
		default:
			return RequestOutcome{Err: protocolViolation(sl.name, StageRequest)}
		}
	}
	return RequestOutcome{Request: current}
}

// ResponseOutcome is the result of running the response stage.
type ResponseOutcome struct {
	Response *request.Response
	Err      *exceptions.UnifiedException
}

// RunResponse executes the response-stage chain in descending-priority
// order (spec §4.C).
func (c *Chain) RunResponse(ctx context.Context, resp *request.Response) ResponseOutcome {
	current := resp
	for _, sl := range c.snapshot(StageResponse) {
		h := newHandler()
		result := invoke(ctx, sl, StageResponse, func() {
			sl.interceptor.OnResponse(current, h)
		}, h.snapshot)

		switch result.kind {
		case outcomeTimeoutSkip:
			continue
		case outcomeTimeoutReject:
			return ResponseOutcome{Err: timeoutException(sl.name, StageResponse)}
		}

		switch result.action {
		case actionNext:
			current = h.resolved
		case actionResolve:
			return ResponseOutcome{Response: h.resolved}
		case actionReject:
			return ResponseOutcome{Err: exceptions.Classify(h.rejected, sl.name, nil)}
		default:
			return ResponseOutcome{Err: protocolViolation(sl.name, StageResponse)}
		}
	}
	return ResponseOutcome{Response: current}
}

// RunError executes the error-stage chain in ascending-priority order; an
// error-stage interceptor may recover the call with a synthetic response
// (spec §4.C).
func (c *Chain) RunError(ctx context.Context, exc *exceptions.UnifiedException) ResponseOutcome {
	var current error = exc
	for _, sl := range c.snapshot(StageError) {
		h := newHandler()
		result := invoke(ctx, sl, StageError, func() {
			sl.interceptor.OnError(current, h)
		}, h.snapshot)

		switch result.kind {
		case outcomeTimeoutSkip:
			continue
		case outcomeTimeoutReject:
			return ResponseOutcome{Err: timeoutException(sl.name, StageError)}
		}

		switch result.action {
		case actionNext:
			current = h.nextExc
		case actionResolve:
			return ResponseOutcome{Response: h.resolved}
		case actionReject:
			return ResponseOutcome{Err: exceptions.Classify(h.rejected, sl.name, nil)}
		default:
			return ResponseOutcome{Err: protocolViolation(sl.name, StageError)}
		}
	}
	return ResponseOutcome{Err: exceptions.Classify(current, "", nil)}
}

// outcomeKind distinguishes a decided invocation from the two timeout
// paths, since a continueOnError timeout must advance the loop (keeping
// the pre-stage value) while a rejecting timeout must end the chain run
// (spec §4.C).
type outcomeKind int

const (
	outcomeDecided outcomeKind = iota
	outcomeTimeoutSkip
	outcomeTimeoutReject
)

type invokeResult struct {
	kind   outcomeKind
	action action
}

// invoke runs fn (which calls the interceptor's stage func) in its own
// goroutine bounded by sl's effective timeout, recording statistics for
// sl/stage (spec §4.C).
func invoke(ctx context.Context, sl *slot, stage Stage, fn func(), snapshot func() (action, bool)) invokeResult {
	start := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()

	timeout := sl.interceptor.effectiveTimeout()
	select {
	case <-done:
	case <-time.After(timeout):
		sl.record(stage, time.Since(start), "timeout")
		if sl.interceptor.ContinueOnError {
			return invokeResult{kind: outcomeTimeoutSkip}
		}
		return invokeResult{kind: outcomeTimeoutReject}
	case <-ctx.Done():
		sl.record(stage, time.Since(start), "timeout")
		return invokeResult{kind: outcomeTimeoutReject}
	}

	duration := time.Since(start)
	act, multipleCalls := snapshot()
	if multipleCalls || act == actionNone {
		sl.record(stage, duration, "failure")
		return invokeResult{kind: outcomeDecided, action: actionNone}
	}
	if act == actionReject {
		sl.record(stage, duration, "failure")
	} else {
		sl.record(stage, duration, "success")
	}
	return invokeResult{kind: outcomeDecided, action: act}
}

func protocolViolation(name string, stage Stage) *exceptions.UnifiedException {
	return exceptions.Classify(
		exceptions.NewChainProtocolError(name+" "+string(stage)+": handler must call exactly one of next/reject/resolve"),
		name, nil,
	)
}

func timeoutException(name string, stage Stage) *exceptions.UnifiedException {
	return exceptions.New(exceptions.TypeOperation, exceptions.CodeOperationTimeout,
		"interceptor \""+name+"\" timed out at "+string(stage)+" stage", name, nil)
}

// versionGreater reports whether a is a strictly greater dotted-numeric
// semver tuple than b (spec §4.C VERSION_BASED strategy). Non-numeric or
// missing segments compare as 0.
func versionGreater(a, b string) bool {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := segment(as, i), segment(bs, i)
		if av != bv {
			return av > bv
		}
	}
	return false
}

func segment(parts []string, i int) int {
	if i >= len(parts) {
		return 0
	}
	v, err := strconv.Atoi(parts[i])
	if err != nil {
		return 0
	}
	return v
}
