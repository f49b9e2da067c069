package cache

import (
	"container/list"
	"path"
	"sync"
	"time"

	"github.com/gomind-http/httpcore/config"
)

// MemoryCache is an in-process Cache: a TTL-keyed map plus an LRU
// eviction order and a background sweep goroutine, grounded on gomind's
// orchestration/cache.go SimpleCache (map + cleanupRoutine/evictExpired)
// and LRUCache (doubly linked eviction list). A HighPriority entry is
// demoted below high-priority entries in the eviction order: normal
// entries are evicted before any high-priority entry as long as a normal
// one exists (spec §4.D).
type MemoryCache struct {
	mu      sync.Mutex
	items   map[string]*list.Element
	order   *list.List // front = most recently used
	maxSize int

	clock         config.Clock
	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopped       bool
}

type memoryEntry struct {
	fingerprint string
	entry       *Entry
}

// NewMemoryCache builds a MemoryCache with maxSize entries and a background
// sweep every sweepInterval. A zero sweepInterval disables the background
// sweep (Get still enforces TTL lazily).
func NewMemoryCache(maxSize int, sweepInterval time.Duration, clock config.Clock) *MemoryCache {
	if maxSize <= 0 {
		maxSize = config.DefaultMaxCacheSize
	}
	if clock == nil {
		clock = config.SystemClock{}
	}
	c := &MemoryCache{
		items:         make(map[string]*list.Element),
		order:         list.New(),
		maxSize:       maxSize,
		clock:         clock,
		sweepInterval: sweepInterval,
		stopSweep:     make(chan struct{}),
	}
	if sweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Get returns the entry for fingerprint if present and unexpired,
// promoting it to most-recently-used. A lazily discovered expiry evicts
// the entry and reports a miss (spec §4.D step "get").
func (c *MemoryCache) Get(fingerprint string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[fingerprint]
	if !ok {
		return nil, false
	}
	me := el.Value.(*memoryEntry)
	if me.entry.Expired(c.clock.Now()) {
		c.removeElement(el)
		return nil, false
	}
	c.order.MoveToFront(el)
	return me.entry, true
}

// Put stores data under fingerprint, resetting its TTL timer. If the cache
// is at capacity, it evicts the least-recently-used non-high-priority
// entry first, falling back to the overall LRU tail only when every
// remaining entry is high-priority.
func (c *MemoryCache) Put(fingerprint string, data any, ttl time.Duration, highPriority bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = config.DefaultCacheTTL
	}

	if el, ok := c.items[fingerprint]; ok {
		me := el.Value.(*memoryEntry)
		me.entry.Data = data
		me.entry.StoredAt = c.clock.Now()
		me.entry.TTL = ttl
		me.entry.HighPriority = highPriority
		c.order.MoveToFront(el)
		return nil
	}

	for len(c.items) >= c.maxSize {
		c.evictOne()
	}

	entry := &Entry{
		Fingerprint:  fingerprint,
		Data:         data,
		StoredAt:     c.clock.Now(),
		TTL:          ttl,
		HighPriority: highPriority,
	}
	el := c.order.PushFront(&memoryEntry{fingerprint: fingerprint, entry: entry})
	c.items[fingerprint] = el
	return nil
}

// evictOne removes the least-recently-used normal-priority entry, or the
// overall LRU tail if none remain (spec §4.D high-priority demotion).
func (c *MemoryCache) evictOne() {
	for el := c.order.Back(); el != nil; el = el.Prev() {
		if !el.Value.(*memoryEntry).entry.HighPriority {
			c.removeElement(el)
			return
		}
	}
	if tail := c.order.Back(); tail != nil {
		c.removeElement(tail)
	}
}

func (c *MemoryCache) removeElement(el *list.Element) {
	me := el.Value.(*memoryEntry)
	delete(c.items, me.fingerprint)
	c.order.Remove(el)
}

// Invalidate removes every key matching pattern (path.Match glob syntax;
// spec §4.D "matches keys by glob").
func (c *MemoryCache) Invalidate(pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fp, el := range c.items {
		matched, err := path.Match(pattern, fp)
		if err != nil {
			return err
		}
		if matched {
			c.removeElement(el)
		}
	}
	return nil
}

// Clear removes every entry.
func (c *MemoryCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	return nil
}

// Shutdown stops the background sweep goroutine. Idempotent.
func (c *MemoryCache) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopSweep)
}

func (c *MemoryCache) sweepLoop() {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweepExpired()
		case <-c.stopSweep:
			return
		}
	}
}

func (c *MemoryCache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if el.Value.(*memoryEntry).entry.Expired(now) {
			c.removeElement(el)
		}
		el = prev
	}
}
