// Package httpcore is a general-purpose HTTP client framework core: a
// priority/dedup request queue, a composable interceptor chain, a response
// cache, retry/timeout logic, and a unified exception taxonomy sitting in
// front of a pluggable Transport. Client wires every component (A-G) behind
// one stable surface.
package httpcore

import (
	"context"
	"time"

	"github.com/gomind-http/httpcore/cache"
	"github.com/gomind-http/httpcore/config"
	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/executor"
	"github.com/gomind-http/httpcore/interceptor"
	"github.com/gomind-http/httpcore/request"
	"github.com/gomind-http/httpcore/resilience"
	"github.com/gomind-http/httpcore/scheduler"
	"github.com/gomind-http/httpcore/transport"
)

// Client is the framework's stable entry point (spec §6): request execution,
// interceptor registration, cache access, scheduler tuning, and exception
// handler registration all hang off of it.
type Client struct {
	cfg *config.Config
	ex  *executor.Executor
}

// Option configures a Client at construction time.
type Option func(*clientBuild)

type clientBuild struct {
	cfgOpts        []config.Option
	transport      transport.Transport
	cache          cache.Cache
	maxConcurrent  int
	maxAllowed     int
	maxQueueTime   time.Duration
	sweepInterval  time.Duration
	denyList       map[string]bool
	breakerFactory func(host string) (*resilience.CircuitBreaker, error)
	logger         config.Logger
	clock          config.Clock
}

// WithConfig passes through config.Option values to the underlying
// config.Config (base URL, default timeouts/headers, logging).
func WithConfig(opts ...config.Option) Option {
	return func(b *clientBuild) { b.cfgOpts = append(b.cfgOpts, opts...) }
}

// WithTransport overrides the default transport.HTTPTransport, e.g. with a
// transport.StubTransport in tests or a transport.CircuitBreakerTransport in
// production.
func WithTransport(tr transport.Transport) Option {
	return func(b *clientBuild) { b.transport = tr }
}

// WithCache overrides the default in-process cache.MemoryCache, e.g. with a
// cache.RedisCache for a shared external persistence layer.
func WithCache(c cache.Cache) Option {
	return func(b *clientBuild) { b.cache = c }
}

// WithConcurrency sets the scheduler's starting/ceiling concurrency and queue
// bounds (spec §4.E).
func WithConcurrency(maxConcurrent, maxAllowed int, maxQueueTime, sweepInterval time.Duration) Option {
	return func(b *clientBuild) {
		b.maxConcurrent = maxConcurrent
		b.maxAllowed = maxAllowed
		b.maxQueueTime = maxQueueTime
		b.sweepInterval = sweepInterval
	}
}

// WithHeaderDenyList overrides the headers excluded from cache-key/dedup
// fingerprinting (spec §6 canonicalization rules).
func WithHeaderDenyList(denyList map[string]bool) Option {
	return func(b *clientBuild) { b.denyList = denyList }
}

// WithCircuitBreakerFactory installs a per-host circuit breaker in front of
// every Transport call.
func WithCircuitBreakerFactory(f func(host string) (*resilience.CircuitBreaker, error)) Option {
	return func(b *clientBuild) { b.breakerFactory = f }
}

// WithDefaultCircuitBreaker builds one per-host breaker via
// resilience.CreateCircuitBreaker, reusing deps' logger/telemetry
// dependency-injection path (and its global-telemetry auto-detection) for
// every host instead of requiring the caller to hand-assemble a
// *resilience.CircuitBreakerConfig.
func WithDefaultCircuitBreaker(namePrefix string, deps resilience.ResilienceDependencies) Option {
	return func(b *clientBuild) {
		b.breakerFactory = func(host string) (*resilience.CircuitBreaker, error) {
			return resilience.CreateCircuitBreaker(namePrefix+"-"+host, deps)
		}
	}
}

// WithLogger overrides the executor's structured logger.
func WithLogger(l config.Logger) Option {
	return func(b *clientBuild) { b.logger = l }
}

// WithClock overrides the executor's time source, for deterministic tests.
func WithClock(c config.Clock) Option {
	return func(b *clientBuild) { b.clock = c }
}

// NewClient builds a Client with a real net/http-backed Transport, an
// in-process MemoryCache, an empty interceptor Chain, and a fresh exception
// Classifier, all bound together by an Executor.
func NewClient(opts ...Option) (*Client, error) {
	b := &clientBuild{
		maxQueueTime:  config.DefaultMaxQueueTime,
		sweepInterval: config.DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(b)
	}

	cfg, err := config.NewConfig(b.cfgOpts...)
	if err != nil {
		return nil, err
	}
	if b.maxConcurrent == 0 {
		b.maxConcurrent = cfg.MaxConcurrent()
	}
	if b.maxAllowed == 0 {
		b.maxAllowed = b.maxConcurrent
	}

	tr := b.transport
	if tr == nil {
		tr = transport.NewHTTPTransport(cfg.DefaultTimeouts().Connect)
	}

	c := b.cache
	if c == nil {
		c = cache.NewMemoryCache(config.DefaultMaxCacheSize, config.DefaultSweepInterval, config.SystemClock{})
	}

	chain := interceptor.NewChain()
	classifier := exceptions.NewClassifier(cfg.Logger())

	var execOpts []executor.Option
	if b.logger != nil {
		execOpts = append(execOpts, executor.WithLogger(b.logger))
	}
	if b.clock != nil {
		execOpts = append(execOpts, executor.WithClock(b.clock))
	}
	if b.breakerFactory != nil {
		execOpts = append(execOpts, executor.WithCircuitBreakerFactory(b.breakerFactory))
	}

	ex := executor.NewExecutor(cfg, tr, chain, c, classifier,
		b.maxConcurrent, b.maxAllowed, b.maxQueueTime, b.sweepInterval, b.denyList, execOpts...)

	return &Client{cfg: cfg, ex: ex}, nil
}

// Execute runs req through the full pipeline and returns its Response. A
// cancelled ctx cancels the request wherever it currently sits: still
// queued, it is dequeued immediately; already admitted, the Transport call
// is asked to abort (spec §4.E "Cancellation").
func (cl *Client) Execute(ctx context.Context, req request.Request) (*request.Response, error) {
	return cl.ex.Execute(ctx, req)
}

// ExecuteBatch runs every request concurrently and folds the results into
// one AggregateResponse (spec §4.F "Batch execution").
func (cl *Client) ExecuteBatch(ctx context.Context, reqs []request.Request) *request.AggregateResponse {
	return cl.ex.ExecuteBatch(ctx, reqs)
}

// Download runs req and streams the response body to disk (spec §4.F
// "Download variant").
func (cl *Client) Download(ctx context.Context, req request.Request, opts executor.DownloadOptions) (*request.Response, error) {
	return cl.ex.Download(ctx, req, opts)
}

// RegisterInterceptor adds name to the interceptor chain under strategy
// (spec §4.C).
func (cl *Client) RegisterInterceptor(name string, ic interceptor.Interceptor, strategy interceptor.RegistrationStrategy) error {
	return cl.ex.Chain().Register(name, ic, strategy)
}

// UnregisterInterceptor removes name from the chain. Removing an unknown
// name is a no-op.
func (cl *Client) UnregisterInterceptor(name string) error {
	return cl.ex.Chain().Unregister(name)
}

// EnableInterceptor re-admits a previously disabled interceptor into chain
// runs.
func (cl *Client) EnableInterceptor(name string) error {
	return cl.ex.Chain().Enable(name)
}

// DisableInterceptor excludes name from chain runs without unregistering it.
func (cl *Client) DisableInterceptor(name string) error {
	return cl.ex.Chain().Disable(name)
}

// UpdateInterceptorConfig changes name's timeout, continueOnError, and
// priority in place.
func (cl *Client) UpdateInterceptorConfig(name string, timeout time.Duration, continueOnError bool, priority int) error {
	return cl.ex.Chain().UpdateConfig(name, timeout, continueOnError, priority)
}

// SetInterceptorOrder overrides priority-based ordering with an explicit
// execution order.
func (cl *Client) SetInterceptorOrder(names []string) error {
	return cl.ex.Chain().SetExecutionOrder(names)
}

// RegisterInterceptorBatch registers every item transactionally, unless
// continueOnError keeps whatever subset succeeded.
func (cl *Client) RegisterInterceptorBatch(items map[string]interceptor.Interceptor, strategy interceptor.RegistrationStrategy, continueOnError bool) error {
	return cl.ex.Chain().RegisterBatch(items, strategy, continueOnError)
}

// WithTemporaryInterceptor registers name for the duration of body and
// restores whatever was registered under name beforehand on return.
func (cl *Client) WithTemporaryInterceptor(name string, ic interceptor.Interceptor, body func() error) error {
	return cl.ex.Chain().WithTemporary(name, ic, body)
}

// CacheGet looks up a raw cache entry by fingerprint.
func (cl *Client) CacheGet(fingerprint string) (*cache.Entry, bool) {
	return cl.ex.Cache().Get(fingerprint)
}

// CachePut inserts data under fingerprint with the given TTL.
func (cl *Client) CachePut(fingerprint string, data any, ttl time.Duration, highPriority bool) error {
	return cl.ex.Cache().Put(fingerprint, data, ttl, highPriority)
}

// CacheInvalidate removes every cache entry whose key matches pattern.
func (cl *Client) CacheInvalidate(pattern string) error {
	return cl.ex.Cache().Invalidate(pattern)
}

// CacheClear empties the cache entirely.
func (cl *Client) CacheClear() error {
	return cl.ex.Cache().Clear()
}

// AdjustConcurrencyLimit changes the scheduler's live concurrency cap,
// clamped to [1, maxAllowed] (spec §4.E).
func (cl *Client) AdjustConcurrencyLimit(n int) {
	cl.ex.Scheduler().AdjustConcurrencyLimit(n)
}

// GetQueueStatus reports the scheduler's current pending/inflight counts.
func (cl *Client) GetQueueStatus() scheduler.QueueStatus {
	return cl.ex.Scheduler().GetQueueStatus()
}

// RegisterGlobalHandler installs h under name, invoked on every classified
// exception in registration order.
func (cl *Client) RegisterGlobalHandler(name string, h exceptions.GlobalHandler) {
	cl.ex.Classifier().RegisterGlobalHandler(name, h)
}

// RemoveGlobalHandler removes the handler registered under name, leaving
// every other handler in place.
func (cl *Client) RemoveGlobalHandler(name string) {
	cl.ex.Classifier().RemoveGlobalHandler(name)
}

// GetExceptionStats reports the per-ErrorCode occurrence counts observed so
// far.
func (cl *Client) GetExceptionStats() map[string]int64 {
	return cl.ex.Classifier().Stats()
}

// ClearExceptionStats resets every per-ErrorCode counter to zero.
func (cl *Client) ClearExceptionStats() {
	cl.ex.Classifier().ClearStats()
}

// Shutdown stops the scheduler's background loops and cancels every still
// pending entry. Shutdown is idempotent.
func (cl *Client) Shutdown() {
	cl.ex.Shutdown()
}
