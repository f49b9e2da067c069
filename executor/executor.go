// Package executor binds the request model, exception classifier,
// interceptor chain, cache, and scheduler to a concrete Transport (spec
// §4.F). Execute implements the ten-step call: cache lookup, scheduler
// admission, request-stage interceptors, Transport, response-stage
// interceptors, parsing, cache store, error-stage interceptors plus retry,
// terminal Response, and QueueEntry release.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gomind-http/httpcore/cache"
	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/interceptor"
	"github.com/gomind-http/httpcore/request"
	"github.com/gomind-http/httpcore/resilience"
	"github.com/gomind-http/httpcore/scheduler"
	"github.com/gomind-http/httpcore/transport"
)

// Executor is the stable, concurrency-safe facade binding components A–E to
// Transport (G). One Executor serves many concurrent Execute/ExecuteBatch/
// Download calls.
type Executor struct {
	baseURL         string
	defaultTimeouts config.Timeouts
	defaultHeaders  map[string]string

	cache      cache.Cache
	denyList   map[string]bool
	chain      *interceptor.Chain
	transport  transport.Transport
	classifier *exceptions.Classifier
	scheduler  *scheduler.Scheduler

	clock  config.Clock
	logger config.Logger

	breakerFactory func(host string) (*resilience.CircuitBreaker, error)
	breakers       sync.Map // host -> *resilience.CircuitBreaker
}

// Option configures optional Executor collaborators.
type Option func(*Executor)

// WithClock overrides the SystemClock default, letting retry backoff and
// queue sweeping be driven deterministically in tests.
func WithClock(c config.Clock) Option {
	return func(ex *Executor) { ex.clock = c }
}

// WithLogger overrides the NoOpLogger default.
func WithLogger(l config.Logger) Option {
	return func(ex *Executor) { ex.logger = l }
}

// WithCircuitBreakerFactory installs a per-host circuit breaker in front of
// every Transport call (spec §4.F's expansion: "an optional per-host
// breaker that can short-circuit the retry loop early"). A nil factory (the
// default) means no breaker — every attempt goes straight to Transport.
func WithCircuitBreakerFactory(f func(host string) (*resilience.CircuitBreaker, error)) Option {
	return func(ex *Executor) { ex.breakerFactory = f }
}

// NewExecutor wires an Executor around tr, chain, c, and classifier, and
// starts its own Scheduler with the given concurrency bounds.
func NewExecutor(
	cfgSrc config.ConfigSource,
	tr transport.Transport,
	chain *interceptor.Chain,
	c cache.Cache,
	classifier *exceptions.Classifier,
	maxConcurrent, maxAllowedConcurrent int,
	maxQueueTime, sweepInterval time.Duration,
	denyList map[string]bool,
	opts ...Option,
) *Executor {
	ex := &Executor{
		baseURL:         cfgSrc.BaseURL(),
		defaultTimeouts: cfgSrc.DefaultTimeouts(),
		defaultHeaders:  cfgSrc.DefaultHeaders(),
		cache:           c,
		denyList:        denyList,
		chain:           chain,
		transport:       tr,
		classifier:      classifier,
		clock:           config.SystemClock{},
		logger:          config.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(ex)
	}
	ex.scheduler = scheduler.NewScheduler(maxConcurrent, maxAllowedConcurrent, maxQueueTime, sweepInterval, denyList, ex.runEntry)
	return ex
}

// Scheduler exposes the underlying Scheduler for the Client facade's
// cancel/adjustConcurrencyLimit/getQueueStatus surface (spec §6).
func (ex *Executor) Scheduler() *scheduler.Scheduler { return ex.scheduler }

// Cache exposes the underlying Cache for the Client facade's
// get/put/invalidate/clear surface (spec §6).
func (ex *Executor) Cache() cache.Cache { return ex.cache }

// Chain exposes the underlying interceptor Chain for the Client facade's
// register/unregister/... surface (spec §6).
func (ex *Executor) Chain() *interceptor.Chain { return ex.chain }

// Classifier exposes the underlying Classifier for the Client facade's
// registerGlobalHandler/getExceptionStats surface (spec §6, §7).
func (ex *Executor) Classifier() *exceptions.Classifier { return ex.classifier }

// Shutdown stops the Scheduler's background loops and cancels every still
// pending entry.
func (ex *Executor) Shutdown() { ex.scheduler.Shutdown() }

// Execute runs one Request through the full pipeline (spec §4.F steps
// 1-10). A nil error means resp.Success reflects a real 2xx outcome; a
// non-nil error is always a *exceptions.UnifiedException and resp (if
// non-nil) carries the same failure summarized for display.
func (ex *Executor) Execute(ctx context.Context, req request.Request) (*request.Response, error) {
	fingerprint := cache.Fingerprint(req, ex.denyList)

	// Step 1: cache lookup.
	if req.CachePolicy.Enabled {
		if entry, ok := ex.cache.Get(fingerprint); ok {
			return &request.Response{Success: true, StatusCode: 200, Data: entry.Data, FromCache: true}, nil
		}
	}

	// Step 2: scheduler admission.
	entry, waitCh := ex.scheduler.Enqueue(req)

	select {
	case result := <-waitCh:
		return resultToResponse(result)
	case <-ctx.Done():
		ex.scheduler.Cancel(entry)
		result := <-waitCh
		return resultToResponse(result)
	}
}

func resultToResponse(result scheduler.Result) (*request.Response, error) {
	if result.Err != nil {
		return &request.Response{
			Success:    false,
			StatusCode: result.Err.StatusCode,
			Message:    result.Err.Message,
			ErrorCode:  string(result.Err.Code),
		}, result.Err
	}
	return result.Response, nil
}

// runEntry is the scheduler.RunFunc collaborator: steps 3-10 for one
// logical QueueEntry, including the full retry loop (spec §4.F step 8).
// Retries happen inside a single admission — the entry stays inflight for
// its fingerprint across every attempt, and is released (step 10) only
// when runEntry returns.
func (ex *Executor) runEntry(entry *scheduler.Entry) scheduler.Result {
	ctx, cancel := entryContext(entry)
	defer cancel()

	req := entry.Request
	for {
		resp, classified := ex.attempt(ctx, entry, req)
		if classified == nil {
			return scheduler.Result{Response: resp}
		}

		final := ex.runErrorStage(ctx, classified)
		if final.recovered != nil {
			return scheduler.Result{Response: final.recovered}
		}

		if !ex.shouldRetry(req, final.exc) {
			return scheduler.Result{Err: final.exc}
		}
		if req.AttemptCount+1 >= req.RetryPolicy.MaxAttempts {
			return scheduler.Result{Err: final.exc}
		}

		delay := retryDelay(req.RetryPolicy, req.AttemptCount+1, retryAfterOverride(final.exc))
		if err := ex.clock.Sleep(ctx, delay); err != nil {
			return scheduler.Result{Err: exceptions.New(exceptions.TypeOperation, exceptions.CodeRequestCancelled, "cancelled during retry backoff", "", nil)}
		}
		req = req.WithAttempt()
	}
}

type errorStageOutcome struct {
	exc       *exceptions.UnifiedException
	recovered *request.Response
}

// runErrorStage runs the error-stage interceptor chain (spec §4.F step 8);
// an error-stage interceptor may recover the call with a synthetic
// response instead of letting the failure propagate to the retry decision.
func (ex *Executor) runErrorStage(ctx context.Context, classified *exceptions.UnifiedException) errorStageOutcome {
	outcome := ex.chain.RunError(ctx, classified)
	if outcome.Response != nil {
		return errorStageOutcome{recovered: outcome.Response}
	}
	if outcome.Err != nil {
		return errorStageOutcome{exc: outcome.Err}
	}
	return errorStageOutcome{exc: classified}
}

// shouldRetry implements spec §4.F step 8's first two retry gates: an
// explicit-no idempotency hint always wins over the classifier's
// IsRetryable verdict.
func (ex *Executor) shouldRetry(req request.Request, exc *exceptions.UnifiedException) bool {
	if req.Idempotent == request.IdempotentNo {
		return false
	}
	return exc.IsRetryable
}

// attempt runs steps 3-7 for one Transport call: request-stage
// interceptors, Transport, response-stage interceptors, parsing, and (on
// success) the cache store.
func (ex *Executor) attempt(ctx context.Context, entry *scheduler.Entry, req request.Request) (*request.Response, *exceptions.UnifiedException) {
	// Step 3: request-stage interceptors.
	reqOutcome := ex.chain.RunRequest(ctx, req)
	if reqOutcome.Err != nil {
		return nil, reqOutcome.Err
	}
	if reqOutcome.Resolve != nil {
		return reqOutcome.Resolve, nil
	}
	resolvedReq := reqOutcome.Request

	resolved, err := ex.resolve(resolvedReq)
	if err != nil {
		return nil, ex.classifier.Classify(err, "resolve", nil)
	}

	// Step 4: Transport.
	raw, err := ex.callTransport(ctx, entry, resolved)
	if err != nil {
		return nil, ex.classifier.Classify(err, "transport", map[string]any{"path": resolvedReq.Path})
	}

	rawResp := &request.Response{
		StatusCode: raw.StatusCode,
		Headers:    raw.Headers,
		DurationMs: raw.DurationMs,
		Data:       raw.BodyBytes,
	}

	// Step 5: response-stage interceptors.
	respOutcome := ex.chain.RunResponse(ctx, rawResp)
	if respOutcome.Err != nil {
		return nil, respOutcome.Err
	}
	finalResp := respOutcome.Response

	// Step 6: parse.
	parsed, perr := ex.parse(resolvedReq, finalResp)
	if perr != nil {
		return nil, perr
	}
	parsed.Success = parsed.StatusCode >= 200 && parsed.StatusCode < 300

	// Step 7: cache store.
	if req.CachePolicy.Enabled && parsed.Success {
		ttl := req.CachePolicy.TTL
		if ttl <= 0 {
			ttl = config.DefaultCacheTTL
		}
		highPriority := req.Priority == request.PriorityCritical || req.Priority == request.PriorityHigh
		if err := ex.cache.Put(entry.Fingerprint, parsed.Data, ttl, highPriority); err != nil {
			ex.logger.Warn("cache store failed", map[string]interface{}{"operation": "cache_put_failed", "error": err.Error()})
		}
	}

	return parsed, nil
}

func (ex *Executor) parse(req request.Request, resp *request.Response) (*request.Response, *exceptions.UnifiedException) {
	if req.Parser == nil {
		return resp, nil
	}
	raw, _ := resp.Data.([]byte)
	val, err := req.Parser(raw)
	if err == nil {
		resp.Data = val
		return resp, nil
	}
	if req.HandleParseError != nil {
		if fallback, ok := req.HandleParseError(raw, err); ok {
			resp.Data = fallback
			return resp, nil
		}
	}
	return nil, ex.classifier.Classify(&exceptions.ParseError{Err: err}, "parse", nil)
}

func (ex *Executor) callTransport(ctx context.Context, entry *scheduler.Entry, req transport.ResolvedRequest) (*transport.RawResponse, error) {
	if ex.breakerFactory == nil {
		return ex.transport.Execute(ctx, req, entry)
	}
	breaker, err := ex.hostBreaker(hostOf(req.URL))
	if err != nil {
		return ex.transport.Execute(ctx, req, entry)
	}
	var raw *transport.RawResponse
	execErr := breaker.Execute(ctx, func() error {
		var innerErr error
		raw, innerErr = ex.transport.Execute(ctx, req, entry)
		return innerErr
	})
	if execErr != nil {
		return nil, execErr
	}
	return raw, nil
}

func (ex *Executor) hostBreaker(host string) (*resilience.CircuitBreaker, error) {
	if existing, ok := ex.breakers.Load(host); ok {
		return existing.(*resilience.CircuitBreaker), nil
	}
	cb, err := ex.breakerFactory(host)
	if err != nil {
		return nil, err
	}
	actual, _ := ex.breakers.LoadOrStore(host, cb)
	return actual.(*resilience.CircuitBreaker), nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}

// resolve builds a transport.ResolvedRequest from req per spec §3's
// body/queryParams resolution rule, merging the executor's default headers
// under the request's own (the request wins on conflict).
func (ex *Executor) resolve(req request.Request) (transport.ResolvedRequest, error) {
	body, queryParams := req.ResolvedBody()

	resolvedURL, err := buildURL(ex.baseURL, req.Path, queryParams)
	if err != nil {
		return transport.ResolvedRequest{}, err
	}

	headers := make(map[string]string, len(ex.defaultHeaders)+len(req.Headers))
	for k, v := range ex.defaultHeaders {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	var bodyBytes []byte
	if body != nil {
		if b, ok := body.([]byte); ok {
			bodyBytes = b
		} else {
			bodyBytes, err = json.Marshal(body)
			if err != nil {
				return transport.ResolvedRequest{}, err
			}
		}
		if len(bodyBytes) > 0 {
			if _, ok := headers["Content-Type"]; !ok {
				headers["Content-Type"] = "application/json"
			}
		}
	}

	timeouts := req.Timeouts
	if timeouts.Connect <= 0 {
		timeouts.Connect = ex.defaultTimeouts.Connect
	}
	if timeouts.Read <= 0 {
		timeouts.Read = ex.defaultTimeouts.Read
	}
	if timeouts.Write <= 0 {
		timeouts.Write = ex.defaultTimeouts.Write
	}

	return transport.ResolvedRequest{
		Method:           string(req.Method),
		URL:              resolvedURL,
		Body:             bodyBytes,
		Headers:          headers,
		ConnectTimeoutMs: timeouts.Connect.Milliseconds(),
		ReadTimeoutMs:    timeouts.Read.Milliseconds(),
		WriteTimeoutMs:   timeouts.Write.Milliseconds(),
	}, nil
}

func buildURL(base, path string, params map[string]string) (string, error) {
	full := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	u, err := url.Parse(full)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, v := range params {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// retryAfterOverride reads a 429 response's Retry-After header (spec §4.F
// step 8: "429 overrides delay with a server-suggested value if present,
// else a longer configured default"). It returns 0 for any other code,
// letting retryDelay fall back to the strategy-computed delay.
func retryAfterOverride(exc *exceptions.UnifiedException) time.Duration {
	if exc.Code != exceptions.CodeTooManyRequests {
		return 0
	}
	var terr *transport.Error
	if errors.As(exc.OriginalError, &terr) && terr.Headers != nil {
		if v := terr.Headers["Retry-After"]; v != "" {
			if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return config.DefaultRetryAfterTooManyRequests
}

// entryContext derives a context cancelled when entry's cancel token fires,
// the same goroutine-plus-select bridge transport.HTTPTransport.Execute
// uses to translate a CancelToken into ctx cancellation.
func entryContext(entry *scheduler.Entry) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-entry.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
