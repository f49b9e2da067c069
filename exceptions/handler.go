package exceptions

import (
	"sync"
	"sync/atomic"

	"github.com/gomind-http/httpcore/config"
)

// GlobalHandler is invoked once per classified failure, in registration
// order (spec §6, §7). A handler that panics is recovered and logged, and
// never allowed to stop the remaining handlers or the main flow.
type GlobalHandler func(exc *UnifiedException)

// Classifier wraps Classify with per-code statistics and global handler
// dispatch. The statistics counters use typed atomics the same way
// resilience.CircuitBreaker tracks its sliding-window buckets, keeping a
// single registry usable from many concurrent goroutines without a lock on
// the hot path.
type Classifier struct {
	stats sync.Map // ErrorCode -> *atomic.Int64

	handlersMu   sync.RWMutex
	handlerOrder []string
	handlers     map[string]GlobalHandler

	logger config.Logger
}

// NewClassifier builds a Classifier. A nil logger falls back to
// config.NoOpLogger.
func NewClassifier(logger config.Logger) *Classifier {
	if logger == nil {
		logger = config.NoOpLogger{}
	}
	return &Classifier{logger: logger}
}

// Classify classifies err and records it against the per-code counter,
// then invokes every registered global handler before returning.
func (c *Classifier) Classify(err error, ctxLabel string, metadata map[string]any) *UnifiedException {
	exc := Classify(err, ctxLabel, metadata)
	c.record(exc.Code)
	c.dispatch(exc)
	return exc
}

func (c *Classifier) record(code ErrorCode) {
	counterAny, _ := c.stats.LoadOrStore(code, &atomic.Int64{})
	counterAny.(*atomic.Int64).Add(1)
}

// dispatch runs every global handler, recovering from panics so a
// misbehaving handler can never take down the framework (spec §7, grounded
// on resilience's panic-recovery discipline for circuit-breaker callbacks).
func (c *Classifier) dispatch(exc *UnifiedException) {
	c.handlersMu.RLock()
	handlers := make([]GlobalHandler, 0, len(c.handlerOrder))
	for _, name := range c.handlerOrder {
		handlers = append(handlers, c.handlers[name])
	}
	c.handlersMu.RUnlock()

	for _, h := range handlers {
		c.safeInvoke(h, exc)
	}
}

func (c *Classifier) safeInvoke(h GlobalHandler, exc *UnifiedException) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("exception handler panicked", map[string]interface{}{
				"operation": "global_handler_panic",
				"code":      string(exc.Code),
				"panic":     r,
			})
		}
	}()
	h(exc)
}

// RegisterGlobalHandler installs h under name, in dispatch order (spec §6,
// §7's registerGlobalHandler(h)/removeGlobalHandler(h) pair). Re-registering
// an existing name replaces its handler without changing its position,
// mirroring interceptor.Chain.Register's name-keyed slots.
func (c *Classifier) RegisterGlobalHandler(name string, h GlobalHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if c.handlers == nil {
		c.handlers = make(map[string]GlobalHandler)
	}
	if _, exists := c.handlers[name]; !exists {
		c.handlerOrder = append(c.handlerOrder, name)
	}
	c.handlers[name] = h
}

// RemoveGlobalHandler removes the handler registered under name, leaving
// every other handler's registration and order untouched. Removing an
// unknown name is a no-op, matching interceptor.Chain.Unregister.
func (c *Classifier) RemoveGlobalHandler(name string) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	if _, exists := c.handlers[name]; !exists {
		return
	}
	delete(c.handlers, name)
	for i, n := range c.handlerOrder {
		if n == name {
			c.handlerOrder = append(c.handlerOrder[:i], c.handlerOrder[i+1:]...)
			break
		}
	}
}

// Stats returns a snapshot of per-code counts.
func (c *Classifier) Stats() map[string]int64 {
	out := make(map[string]int64)
	c.stats.Range(func(k, v interface{}) bool {
		out[string(k.(ErrorCode))] = v.(*atomic.Int64).Load()
		return true
	})
	return out
}

// ClearStats resets every per-code counter to zero without removing
// registered handlers.
func (c *Classifier) ClearStats() {
	c.stats.Range(func(k, v interface{}) bool {
		v.(*atomic.Int64).Store(0)
		return true
	})
}
