// Package cache maps a request fingerprint to its previously parsed
// response, enforcing TTL and at-most-one-materialization per key (spec
// §4.D). Two implementations are provided: MemoryCache (in-process, TTL +
// LRU) and RedisCache (external persistence, grounded on gomind's
// core/redis_client.go + core/schema_cache.go).
package cache

import "time"

// Entry is one cached value (spec §3 "CacheEntry").
type Entry struct {
	Fingerprint string
	Data        any
	StoredAt    time.Time
	TTL         time.Duration
	Size        int

	// HighPriority protects this entry in the LRU eviction order: a
	// high-priority entry is evicted only once no normal entry is left
	// (spec §4.D).
	HighPriority bool
}

// Expired reports whether e's TTL has elapsed as of now.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.StoredAt.Add(e.TTL))
}

// Cache is the contract spec §4.D and §6 name: Get/Put/Invalidate/Clear.
// No persistent file format is specified (spec §6); RedisCache is the one
// external-persistence option this core ships.
type Cache interface {
	Get(fingerprint string) (*Entry, bool)
	Put(fingerprint string, data any, ttl time.Duration, highPriority bool) error
	Invalidate(pattern string) error
	Clear() error
}
