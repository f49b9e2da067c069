package config

import "time"

// Environment variables read by Config.LoadFromEnv.
const (
	EnvBaseURL        = "HTTPCORE_BASE_URL"
	EnvConnectTimeout = "HTTPCORE_CONNECT_TIMEOUT_MS"
	EnvReadTimeout    = "HTTPCORE_READ_TIMEOUT_MS"
	EnvWriteTimeout   = "HTTPCORE_WRITE_TIMEOUT_MS"
	EnvMaxConcurrent  = "HTTPCORE_MAX_CONCURRENT"
	EnvLogLevel       = "HTTPCORE_LOG_LEVEL"
	EnvLogFormat      = "HTTPCORE_LOG_FORMAT"
	EnvDevMode        = "HTTPCORE_DEV_MODE"
)

// Default timeouts and queue ceilings (spec §3, §4.E).
const (
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 15 * time.Second
	DefaultWriteTimeout   = 15 * time.Second

	// DefaultMaxQueueTime is the hard per-request pending ceiling (spec
	// §4.E: "default 10 s for pending; configurable").
	DefaultMaxQueueTime = 10 * time.Second

	// DefaultSweepInterval is the scheduler staleness sweep period (spec
	// §4.E: "interval ≤ 5 s").
	DefaultSweepInterval = 2 * time.Second

	// DefaultMaxConcurrent bounds in-flight Transport calls absent an
	// explicit override.
	DefaultMaxConcurrent = 16

	// DefaultCacheTTL applies when a request enables caching without
	// specifying its own TTL.
	DefaultCacheTTL = 60 * time.Second

	// DefaultMaxCacheSize is the LRU eviction ceiling for MemoryCache.
	DefaultMaxCacheSize = 1000

	// DefaultRedisCachePrefix namespaces keys written by RedisCache.
	DefaultRedisCachePrefix = "httpcore:cache:"

	// DefaultMaxBackoff clamps expBackoff delay (spec §4.F step 8).
	DefaultMaxBackoff = 30 * time.Second

	// DefaultRetryAfterTooManyRequests is used when a 429 carries no
	// server-suggested Retry-After value.
	DefaultRetryAfterTooManyRequests = 5 * time.Second
)

// HeaderDenyList names the headers cache.Fingerprint excludes by default
// (spec §6). The cache package keeps its own copy of this list; nothing in
// the module reads this variable, and structured logs are not filtered by it.
var HeaderDenyList = []string{"authorization", "date", "cookie", "set-cookie"}
