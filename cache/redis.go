package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gomind-http/httpcore/config"
)

// RedisCache is the external-persistence Cache implementation (spec §6:
// "unless a caller wires an external persistence layer"), grounded on
// gomind's core/redis_client.go (key namespacing, Set/Del helpers) and
// core/schema_cache.go (JSON-marshalled values under TTL).
type RedisCache struct {
	client *redis.Client
	prefix string
}

type redisPayload struct {
	Data         json.RawMessage `json:"data"`
	HighPriority bool            `json:"high_priority"`
}

// NewRedisCache wraps client. prefix namespaces every key this cache
// writes/reads/scans, defaulting to config.DefaultRedisCachePrefix.
func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = config.DefaultRedisCachePrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (r *RedisCache) key(fingerprint string) string {
	return r.prefix + fingerprint
}

// Get fetches and unmarshals the stored payload. A Redis miss or a key
// that expired naturally (Redis enforces TTL itself via SET...EX) reports
// a cache miss, same contract as MemoryCache.Get.
func (r *RedisCache) Get(fingerprint string) (*Entry, bool) {
	ctx := context.Background()
	raw, err := r.client.Get(ctx, r.key(fingerprint)).Result()
	if err != nil {
		return nil, false
	}

	var payload redisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, false
	}

	var data any
	if err := json.Unmarshal(payload.Data, &data); err != nil {
		return nil, false
	}

	ttl, err := r.client.TTL(ctx, r.key(fingerprint)).Result()
	if err != nil {
		ttl = 0
	}

	return &Entry{
		Fingerprint:  fingerprint,
		Data:         data,
		StoredAt:     time.Now().Add(-1), // Redis doesn't report the original write time; StoredAt is informational only here.
		TTL:          ttl,
		HighPriority: payload.HighPriority,
	}, true
}

// Put stores data under fingerprint using SET ... EX for TTL enforcement
// (spec §4.D: "using SET ... EX for TTL").
func (r *RedisCache) Put(fingerprint string, data any, ttl time.Duration, highPriority bool) error {
	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("cache: marshal data: %w", err)
	}
	payload, err := json.Marshal(redisPayload{Data: dataJSON, HighPriority: highPriority})
	if err != nil {
		return fmt.Errorf("cache: marshal payload: %w", err)
	}

	return r.client.Set(context.Background(), r.key(fingerprint), payload, ttl).Err()
}

// Invalidate matches keys by glob using SCAN (non-blocking, cursor-based)
// followed by DEL (spec §4.D: "SCAN+DEL for pattern invalidation").
func (r *RedisCache) Invalidate(pattern string) error {
	ctx := context.Background()
	var cursor uint64
	matchPattern := r.prefix + pattern

	for {
		keys, next, err := r.client.Scan(ctx, cursor, matchPattern, 100).Result()
		if err != nil {
			return fmt.Errorf("cache: scan: %w", err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("cache: del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return nil
}

// Clear removes every key under this cache's prefix.
func (r *RedisCache) Clear() error {
	return r.Invalidate("*")
}
