// Package concurrency implements the per-API-key concurrency manager: each
// key gets an independent active-request ceiling, and requests that would
// exceed it wait on a single global priority queue instead of failing
// outright (spec.md §5).
package concurrency

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// UnauthenticatedKey is the bucket identifier used for requests that carry
// no resolvable API key, so they still share a single concurrency ceiling
// instead of bypassing the manager entirely.
const UnauthenticatedKey = "__unauthenticated__"

// Slot represents one admitted request. Release must be called exactly once
// to free the key's active-count and wake the next waiter, if any.
type Slot struct {
	m         *Manager
	key       string
	released  bool
	mu        sync.Mutex
}

// Release frees this slot's concurrency unit. Calling Release more than
// once is a safe no-op.
func (s *Slot) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.mu.Unlock()
	s.m.release(s.key)
}

// keyState tracks one key's live limit/priority and current usage. limit
// and priority are changed only by SetOverride and read on every Acquire
// call, so a new override takes effect for the next request without
// restarting in-flight ones.
type keyState struct {
	limit    int
	priority int
	active   int
}

// waiter is one parked request inside the global heap, ordered by
// (priority, enqueueTime, seq) ascending — lower priority value means
// served first, ties broken FIFO by arrival order.
type waiter struct {
	key         string
	priority    int
	enqueueTime time.Time
	seq         uint64
	ready       chan struct{}
	cancelled   bool
	index       int // heap.Interface bookkeeping
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }
func (h waiterHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	if !h[i].enqueueTime.Equal(h[j].enqueueTime) {
		return h[i].enqueueTime.Before(h[j].enqueueTime)
	}
	return h[i].seq < h[j].seq
}
func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}
func (h *waiterHeap) Pop() any {
	old := *h
	n := len(old)
	w := old[n-1]
	old[n-1] = nil
	w.index = -1
	*h = old[:n-1]
	return w
}

// Metrics is a point-in-time snapshot of manager load, exposed for the
// admin/health surface.
type Metrics struct {
	ActiveKeys     int
	TotalActive    int
	QueueDepth     int
	MaxQueueDepth  int // configured ceiling (Options.MaxQueueDepth), 0 = unbounded
	PeakQueueDepth int // highest QueueDepth observed since startup
	TotalQueued    uint64
	TotalAdmitted  uint64
	TotalRejected  uint64
	TotalCancelled uint64
}

// Manager enforces a per-key concurrency ceiling backed by one global
// priority queue for requests that overflow their key's limit.
type Manager struct {
	mu            sync.Mutex
	keys          map[string]*keyState
	queue         waiterHeap
	seq           uint64
	defaultLimit  int
	defaultPrio   int
	queueTimeout  time.Duration
	maxQueueDepth int

	totalQueued    uint64
	totalAdmitted  uint64
	totalRejected  uint64
	totalCancelled uint64
	peakQueueDepth int
}

// Options configures a new Manager.
type Options struct {
	// DefaultLimit is the concurrency ceiling for a key seen for the first
	// time with no explicit override.
	DefaultLimit int
	// DefaultPriority is the priority assigned to a key with no override;
	// lower values are served first.
	DefaultPriority int
	// QueueTimeout bounds how long a waiter sits in the queue before
	// Acquire returns context.DeadlineExceeded-equivalent ErrQueueTimeout.
	// Zero means no timeout beyond ctx's own deadline.
	QueueTimeout time.Duration
	// MaxQueueDepth caps the global waiter count; Acquire returns
	// ErrQueueFull once reached. Zero means unbounded.
	MaxQueueDepth int
}

// New builds a Manager. DefaultLimit of zero or less is treated as 1.
func New(opts Options) *Manager {
	limit := opts.DefaultLimit
	if limit <= 0 {
		limit = 1
	}
	return &Manager{
		keys:          map[string]*keyState{},
		defaultLimit:  limit,
		defaultPrio:   opts.DefaultPriority,
		queueTimeout:  opts.QueueTimeout,
		maxQueueDepth: opts.MaxQueueDepth,
	}
}

// KeyOverride sets a specific key's limit and/or priority, applied on its
// next Acquire (hot-reloadable; does not affect slots already admitted).
type KeyOverride struct {
	Key      string
	Limit    int
	Priority int
}

// SetOverride installs a key-specific limit/priority. A zero Limit falls
// back to the manager default the next time the key is seen.
func (m *Manager) SetOverride(o KeyOverride) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ks := m.getOrCreateKeyLocked(o.Key)
	limit := o.Limit
	if limit <= 0 {
		limit = m.defaultLimit
	}
	ks.limit = limit
	ks.priority = o.Priority
}

func (m *Manager) getOrCreateKeyLocked(key string) *keyState {
	ks, ok := m.keys[key]
	if !ok {
		ks = &keyState{limit: m.defaultLimit, priority: m.defaultPrio}
		m.keys[key] = ks
	}
	return ks
}

func normalizeKey(key string) string {
	if key == "" {
		return UnauthenticatedKey
	}
	return key
}

// Acquire admits the request immediately if the key has a free slot;
// otherwise it enqueues the request onto the global priority heap and
// blocks until a slot frees, the queue times out, ctx is cancelled, or the
// queue is already at MaxQueueDepth.
func (m *Manager) Acquire(ctx context.Context, key string) (*Slot, error) {
	key = normalizeKey(key)

	m.mu.Lock()
	ks := m.getOrCreateKeyLocked(key)
	if ks.active < ks.limit {
		ks.active++
		m.totalAdmitted++
		m.mu.Unlock()
		return &Slot{m: m, key: key}, nil
	}

	if m.maxQueueDepth > 0 && len(m.queue) >= m.maxQueueDepth {
		m.totalRejected++
		m.mu.Unlock()
		return nil, ErrQueueFull
	}

	m.seq++
	w := &waiter{
		key:         key,
		priority:    ks.priority,
		enqueueTime: monotonicNow(),
		seq:         m.seq,
		ready:       make(chan struct{}),
	}
	heap.Push(&m.queue, w)
	m.totalQueued++
	if len(m.queue) > m.peakQueueDepth {
		m.peakQueueDepth = len(m.queue)
	}
	m.mu.Unlock()

	var timeoutC <-chan time.Time
	if m.queueTimeout > 0 {
		timer := time.NewTimer(m.queueTimeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	select {
	case <-w.ready:
		return &Slot{m: m, key: key}, nil
	case <-timeoutC:
		m.removeWaiter(w)
		return nil, ErrQueueTimeout
	case <-ctx.Done():
		m.removeWaiter(w)
		return nil, ctx.Err()
	}
}

// removeWaiter cancels a still-queued waiter, or no-ops if it was already
// woken by release() (in which case its admitted slot must still be
// returned to the pool, since the caller gave up before consuming it).
func (m *Manager) removeWaiter(w *waiter) {
	m.mu.Lock()
	if w.index == -1 {
		// Already popped and admitted by release(); the caller bailed out
		// between the admit and observing w.ready, so give the slot back.
		m.mu.Unlock()
		m.totalCancelled++
		m.release(w.key)
		return
	}
	heap.Remove(&m.queue, w.index)
	w.cancelled = true
	m.totalCancelled++
	m.mu.Unlock()
}

// release frees one active unit for key and wakes the highest-priority
// queued waiter for that key, if any; if none is waiting for this specific
// key, the unit simply becomes free for the next Acquire call on it.
func (m *Manager) release(key string) {
	m.mu.Lock()
	ks, ok := m.keys[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	ks.active--

	// Find the highest-priority waiter for this key. The queue is a single
	// global heap shared across keys, so this is a linear scan bounded by
	// queue depth; queue depth is expected to stay small relative to total
	// throughput since it only holds requests actively over their key's
	// limit.
	var chosen *waiter
	for _, w := range m.queue {
		if w.key != key {
			continue
		}
		if chosen == nil || (waiterHeap{w, chosen}).Less(0, 1) {
			chosen = w
		}
	}
	if chosen != nil {
		heap.Remove(&m.queue, chosen.index)
		ks.active++
		m.totalAdmitted++
		m.mu.Unlock()
		close(chosen.ready)
		return
	}
	m.mu.Unlock()
}

// Snapshot returns current load metrics.
func (m *Manager) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, ks := range m.keys {
		total += ks.active
	}
	return Metrics{
		ActiveKeys:     len(m.keys),
		TotalActive:    total,
		QueueDepth:     len(m.queue),
		MaxQueueDepth:  m.maxQueueDepth,
		PeakQueueDepth: m.peakQueueDepth,
		TotalQueued:    m.totalQueued,
		TotalAdmitted:  m.totalAdmitted,
		TotalRejected:  m.totalRejected,
		TotalCancelled: m.totalCancelled,
	}
}

// Purge drops key state for keys with zero active usage and an empty
// queue, bounding memory growth for deployments cycling through many
// short-lived keys. Intended to be called periodically, not per-request.
func (m *Manager) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	inQueue := map[string]bool{}
	for _, w := range m.queue {
		inQueue[w.key] = true
	}
	removed := 0
	for key, ks := range m.keys {
		if ks.active == 0 && !inQueue[key] {
			delete(m.keys, key)
			removed++
		}
	}
	return removed
}

var monotonicNow = time.Now
