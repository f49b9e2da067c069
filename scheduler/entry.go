// Package scheduler implements the priority/dedup request queue: a binary
// heap ordered by (priority, enqueuedAt), a fingerprint-keyed dedup index,
// an inflight set, and a staleness sweeper. The Entry lifecycle fields
// (ID, Status, CreatedAt/StartedAt/CompletedAt/CancelledAt) are grounded on
// gomind's core/async_task.go Task/TaskStatus — its queued→running→terminal
// lifecycle generalizes directly to Entry's ENQUEUED→ADMITTED→terminal
// state machine (spec §4.E).
package scheduler

import (
	"time"

	"github.com/google/uuid"

	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/request"
)

// Status is the current lifecycle state of an Entry (spec §4.E: "ENQUEUED
// → (DEDUP_ATTACHED | ADMITTED) → (COMPLETED | FAILED | CANCELLED |
// TIMED_OUT)").
type Status string

const (
	StatusEnqueued     Status = "ENQUEUED"
	StatusDedupAttached Status = "DEDUP_ATTACHED"
	StatusAdmitted     Status = "ADMITTED"
	StatusCompleted    Status = "COMPLETED"
	StatusFailed       Status = "FAILED"
	StatusCancelled    Status = "CANCELLED"
	StatusTimedOut     Status = "TIMED_OUT"
)

// IsTerminal reports whether s is one of the four terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Result is what every waiter attached to an Entry is resolved with.
type Result struct {
	Response *request.Response
	Err      *exceptions.UnifiedException
}

// waiter is a one-shot channel a caller blocks on until the Entry reaches a
// terminal state.
type waiter chan Result

// Entry is one logical admission unit: it may represent several identical
// callers deduplicated onto the same fingerprint (spec §4.E step 2).
type Entry struct {
	ID          string
	Fingerprint string
	Request     request.Request
	Priority    request.Priority

	Status Status

	CreatedAt   time.Time
	EnqueuedAt  time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time

	maxQueueTime time.Duration

	// heapIndex is maintained by container/heap's Swap/Push/Pop; -1 once
	// the entry leaves the heap (admitted, cancelled while pending, etc).
	heapIndex int

	waiters []waiter

	// cancelCh is closed exactly once, by closeOnce, and observed by the
	// Transport call in progress (spec §4.E: "the Transport call is asked
	// to abort").
	cancelCh chan struct{}
}

func newEntry(req request.Request, fingerprint string, maxQueueTime time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		ID:           uuid.New().String(),
		Fingerprint:  fingerprint,
		Request:      req,
		Priority:     req.Priority,
		Status:       StatusEnqueued,
		CreatedAt:    now,
		EnqueuedAt:   now,
		maxQueueTime: maxQueueTime,
		heapIndex:    -1,
		cancelCh:     make(chan struct{}),
	}
}

// Done implements transport.CancelToken.
func (e *Entry) Done() <-chan struct{} {
	return e.cancelCh
}

// Err implements transport.CancelToken.
func (e *Entry) Err() error {
	select {
	case <-e.cancelCh:
		return errEntryCancelled
	default:
		return nil
	}
}

func (e *Entry) addWaiter() waiter {
	w := make(waiter, 1)
	e.waiters = append(e.waiters, w)
	return w
}

// resolve delivers result to every attached waiter exactly once (spec
// §4.E: "Terminal states release all waiters exactly once") and stamps the
// terminal timestamp fields.
func (e *Entry) resolve(status Status, result Result) {
	e.Status = status
	now := time.Now()
	switch status {
	case StatusCancelled:
		e.CancelledAt = &now
	default:
		e.CompletedAt = &now
	}
	for _, w := range e.waiters {
		w <- result
	}
	e.waiters = nil
}
