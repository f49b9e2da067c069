package scheduler

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"github.com/gomind-http/httpcore/cache"
	"github.com/gomind-http/httpcore/exceptions"
	"github.com/gomind-http/httpcore/request"
)

var errEntryCancelled = errors.New("scheduler: entry cancelled")

// RunFunc executes an admitted Entry against the transport/interceptor
// stack. The Scheduler never imports the executor package (spec §4.E/§4.F
// layering: the Executor hands work to the Scheduler, not the reverse) —
// RunFunc is the Executor's injected collaborator, mirroring the
// capability-interface decoupling already used between exceptions and
// transport.
type RunFunc func(entry *Entry) Result

// watermark constants governing the optional dynamic-concurrency policy
// (spec §4.E: "when average observed transport duration exceeds a
// high-watermark, decrement; when it falls below a low-watermark with
// pending > 0, increment").
const (
	highWatermark = 2 * time.Second
	lowWatermark  = 200 * time.Millisecond
	emaSmoothing  = 0.2
)

// QueueStatus is a point-in-time snapshot returned by GetQueueStatus.
type QueueStatus struct {
	Pending       int
	Inflight      int
	MaxConcurrent int
	Completed     int64
	Failed        int64
	Cancelled     int64
	TimedOut      int64
}

// Scheduler is the priority/dedup request queue (spec §4.E). It guards its
// state with four disjoint locks acquired only in this order — queueMu,
// waiterMu, dedupMu, statsMu — to prevent deadlock across cross-lock
// operations (spec §5).
type Scheduler struct {
	run RunFunc

	denyList     map[string]bool
	maxQueueTime time.Duration
	maxAllowed   int

	// (i) queue state: the pending heap and the inflight set.
	queueMu       sync.Mutex
	heap          entryHeap
	inflight      map[string]*Entry // fingerprint -> admitted Entry
	maxConcurrent int

	// (ii) per-request waiter slices, shared across every Entry.
	waiterMu sync.Mutex

	// (iii) dedup index of pending (not yet admitted) entries.
	dedupMu              sync.Mutex
	pendingByFingerprint map[string]*Entry

	// (iv) statistics.
	statsMu   sync.Mutex
	completed int64
	failed    int64
	cancelled int64
	timedOut  int64
	emaMs     float64

	admitSignal   chan struct{}
	sweepInterval time.Duration
	stopSweep     chan struct{}
	stopped       bool
	stopOnce      sync.Once
}

// NewScheduler builds a Scheduler. run is invoked once per admitted Entry,
// in its own goroutine. denyList scopes the fingerprint's header exclusions
// (spec §6); a nil denyList falls back to cache.Fingerprint's own default
// deny list.
func NewScheduler(maxConcurrent, maxAllowed int, maxQueueTime, sweepInterval time.Duration, denyList map[string]bool, run RunFunc) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxAllowed < maxConcurrent {
		maxAllowed = maxConcurrent
	}
	s := &Scheduler{
		run:                  run,
		denyList:             denyList,
		maxQueueTime:         maxQueueTime,
		maxAllowed:           maxAllowed,
		inflight:             make(map[string]*Entry),
		maxConcurrent:        maxConcurrent,
		pendingByFingerprint: make(map[string]*Entry),
		admitSignal:          make(chan struct{}, 1),
		sweepInterval:        sweepInterval,
		stopSweep:            make(chan struct{}),
	}
	go s.admitLoop()
	if sweepInterval > 0 {
		go s.sweepLoop()
	}
	return s
}

// Enqueue implements spec §4.E's dedup algorithm: an identical in-flight or
// pending fingerprint attaches a waiter to the existing Entry instead of
// building a new one; otherwise a new Entry is pushed onto the heap.
func (s *Scheduler) Enqueue(req request.Request) (*Entry, <-chan Result) {
	fp := cache.Fingerprint(req, s.denyList)

	s.queueMu.Lock()
	if existing, ok := s.inflight[fp]; ok {
		s.queueMu.Unlock()
		s.waiterMu.Lock()
		w := existing.addWaiter()
		s.waiterMu.Unlock()
		return existing, w
	}
	s.queueMu.Unlock()

	s.dedupMu.Lock()
	if existing, ok := s.pendingByFingerprint[fp]; ok {
		s.dedupMu.Unlock()
		s.waiterMu.Lock()
		existing.Status = StatusDedupAttached
		w := existing.addWaiter()
		s.waiterMu.Unlock()
		return existing, w
	}

	entry := newEntry(req, fp, s.maxQueueTime)
	s.pendingByFingerprint[fp] = entry
	s.dedupMu.Unlock()

	s.waiterMu.Lock()
	w := entry.addWaiter()
	s.waiterMu.Unlock()

	s.queueMu.Lock()
	if req.Priority == request.PriorityCritical && len(s.inflight) < s.maxConcurrent {
		s.admitLocked(entry)
		s.queueMu.Unlock()
		return entry, w
	}
	heap.Push(&s.heap, entry)
	s.queueMu.Unlock()

	s.signalAdmit()
	return entry, w
}

func (s *Scheduler) signalAdmit() {
	select {
	case s.admitSignal <- struct{}{}:
	default:
	}
}

// admitLoop is the background admission loop (spec §4.E: "driven by entry
// events, not a busy poll"): it blocks on admitSignal and, each time it
// wakes, admits every entry the concurrency cap currently allows.
func (s *Scheduler) admitLoop() {
	for {
		select {
		case <-s.admitSignal:
		case <-s.stopSweep:
			return
		}
		s.drainAdmissions()
	}
}

func (s *Scheduler) drainAdmissions() {
	for {
		s.queueMu.Lock()
		if s.heap.Len() == 0 || len(s.inflight) >= s.maxConcurrent {
			s.queueMu.Unlock()
			return
		}
		entry := heap.Pop(&s.heap).(*Entry)
		s.admitLocked(entry)
		s.queueMu.Unlock()
	}
}

// admitLocked moves entry from pending to inflight and dispatches run.
// Callers must hold queueMu.
func (s *Scheduler) admitLocked(entry *Entry) {
	s.dedupMu.Lock()
	delete(s.pendingByFingerprint, entry.Fingerprint)
	s.dedupMu.Unlock()

	now := time.Now()
	entry.Status = StatusAdmitted
	entry.StartedAt = &now
	s.inflight[entry.Fingerprint] = entry

	go s.dispatch(entry)
}

// dispatch runs entry's Transport/interceptor work and resolves every
// attached waiter with the outcome exactly once (spec §4.E state machine).
func (s *Scheduler) dispatch(entry *Entry) {
	result := s.run(entry)

	status := StatusCompleted
	if result.Err != nil {
		switch {
		case result.Err.Code == exceptions.CodeRequestCancelled:
			status = StatusCancelled
		case result.Err.Code == exceptions.CodeOperationTimeout:
			status = StatusTimedOut
		default:
			status = StatusFailed
		}
	}

	s.queueMu.Lock()
	delete(s.inflight, entry.Fingerprint)
	s.queueMu.Unlock()

	s.waiterMu.Lock()
	if entry.StartedAt != nil {
		s.recordDuration(time.Since(*entry.StartedAt))
	}
	entry.resolve(status, result)
	s.waiterMu.Unlock()

	s.recordStat(status)
	s.signalAdmit()
}

func (s *Scheduler) recordStat(status Status) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	switch status {
	case StatusCompleted:
		s.completed++
	case StatusFailed:
		s.failed++
	case StatusCancelled:
		s.cancelled++
	case StatusTimedOut:
		s.timedOut++
	}
}

func (s *Scheduler) recordDuration(d time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	ms := float64(d.Milliseconds())
	if s.emaMs == 0 {
		s.emaMs = ms
		return
	}
	s.emaMs = emaSmoothing*ms + (1-emaSmoothing)*s.emaMs
}

// Cancel transitions entry to cancelled (spec §4.E): if still pending it is
// removed from the heap and resolved with REQUEST_CANCELLED directly; if
// already admitted, its cancel token is closed so the Transport call is
// asked to abort and the usual failure path resolves it.
func (s *Scheduler) Cancel(entry *Entry) {
	s.queueMu.Lock()
	if cur, ok := s.inflight[entry.Fingerprint]; ok && cur == entry {
		s.queueMu.Unlock()
		closeOnce(entry)
		return
	}
	if entry.heapIndex >= 0 {
		heap.Remove(&s.heap, entry.heapIndex)
		s.queueMu.Unlock()

		s.dedupMu.Lock()
		if s.pendingByFingerprint[entry.Fingerprint] == entry {
			delete(s.pendingByFingerprint, entry.Fingerprint)
		}
		s.dedupMu.Unlock()

		exc := exceptions.New(exceptions.TypeOperation, exceptions.CodeRequestCancelled,
			"request cancelled while pending", entry.Request.Context, nil)
		s.waiterMu.Lock()
		entry.resolve(StatusCancelled, Result{Err: exc})
		s.waiterMu.Unlock()
		s.recordStat(StatusCancelled)
		return
	}
	s.queueMu.Unlock()
}

func closeOnce(entry *Entry) {
	select {
	case <-entry.cancelCh:
	default:
		close(entry.cancelCh)
	}
}

// AdjustConcurrencyLimit sets the concurrency cap, clamped to [1,
// maxAllowed] (spec §4.E).
func (s *Scheduler) AdjustConcurrencyLimit(n int) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if n < 1 {
		n = 1
	}
	if n > s.maxAllowed {
		n = s.maxAllowed
	}
	s.maxConcurrent = n
	s.signalAdmit()
}

// GetQueueStatus returns a point-in-time snapshot of the queue.
func (s *Scheduler) GetQueueStatus() QueueStatus {
	s.queueMu.Lock()
	pending := s.heap.Len()
	inflight := len(s.inflight)
	maxConcurrent := s.maxConcurrent
	s.queueMu.Unlock()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return QueueStatus{
		Pending:       pending,
		Inflight:      inflight,
		MaxConcurrent: maxConcurrent,
		Completed:     s.completed,
		Failed:        s.failed,
		Cancelled:     s.cancelled,
		TimedOut:      s.timedOut,
	}
}

// sweepLoop is the staleness sweeper (spec §4.E: "interval ≤ 5s"). It
// cancels pending entries past their maxQueueTime with OPERATION_TIMEOUT
// and nudges stale inflight entries to abort via their cancel token, and
// applies the optional dynamic-concurrency watermark policy.
func (s *Scheduler) sweepLoop() {
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepStale()
			s.applyWatermarkPolicy()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Scheduler) sweepStale() {
	now := time.Now()

	var stalePending []*Entry
	s.queueMu.Lock()
	for _, e := range s.heap {
		limit := e.maxQueueTime
		if limit <= 0 {
			limit = s.maxQueueTime
		}
		if now.Sub(e.EnqueuedAt) > limit {
			stalePending = append(stalePending, e)
		}
	}
	for _, e := range stalePending {
		heap.Remove(&s.heap, e.heapIndex)
	}
	var staleInflight []*Entry
	for _, e := range s.inflight {
		readTimeout := e.Request.Timeouts.Read
		if e.StartedAt != nil && readTimeout > 0 && now.Sub(*e.StartedAt) > readTimeout {
			staleInflight = append(staleInflight, e)
		}
	}
	s.queueMu.Unlock()

	for _, e := range stalePending {
		s.dedupMu.Lock()
		if s.pendingByFingerprint[e.Fingerprint] == e {
			delete(s.pendingByFingerprint, e.Fingerprint)
		}
		s.dedupMu.Unlock()

		exc := exceptions.New(exceptions.TypeOperation, exceptions.CodeOperationTimeout,
			"request exceeded the pending queue ceiling", e.Request.Context, nil)
		s.waiterMu.Lock()
		e.resolve(StatusTimedOut, Result{Err: exc})
		s.waiterMu.Unlock()
		s.recordStat(StatusTimedOut)
	}
	for _, e := range staleInflight {
		closeOnce(e)
	}
}

func (s *Scheduler) applyWatermarkPolicy() {
	s.queueMu.Lock()
	pending := s.heap.Len()
	maxConcurrent := s.maxConcurrent
	maxAllowed := s.maxAllowed
	s.queueMu.Unlock()

	s.statsMu.Lock()
	ema := s.emaMs
	s.statsMu.Unlock()

	if ema <= 0 {
		return
	}
	switch {
	case ema > float64(highWatermark.Milliseconds()) && maxConcurrent > 1:
		s.AdjustConcurrencyLimit(maxConcurrent - 1)
	case ema < float64(lowWatermark.Milliseconds()) && pending > 0 && maxConcurrent < maxAllowed:
		s.AdjustConcurrencyLimit(maxConcurrent + 1)
	}
}

// Shutdown cancels all pending entries, stops the sweeper, and is
// idempotent (spec §5: "dispose is idempotent").
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.stopSweep)

		s.queueMu.Lock()
		pending := make([]*Entry, len(s.heap))
		copy(pending, s.heap)
		s.heap = nil
		s.queueMu.Unlock()

		s.dedupMu.Lock()
		s.pendingByFingerprint = make(map[string]*Entry)
		s.dedupMu.Unlock()

		exc := exceptions.New(exceptions.TypeOperation, exceptions.CodeRequestCancelled,
			"scheduler shut down", "", nil)
		for _, e := range pending {
			s.waiterMu.Lock()
			e.resolve(StatusCancelled, Result{Err: exc})
			s.waiterMu.Unlock()
		}
	})
}
