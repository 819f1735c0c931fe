// ABOUTME: Thread-safe, TTL-bounded record of tool names a session has called.
// ABOUTME: Backs the advisory prerequisite notes added by the dispatcher.

package history

import (
	"container/list"
	"sync"
	"time"
)

// DefaultTTL is how long a successful call counts toward prerequisites.
const DefaultTTL = time.Hour

// DefaultMaxEntries bounds the number of distinct tool names remembered.
const DefaultMaxEntries = 256

type entry struct {
	at      time.Time
	element *list.Element
}

// Tracker remembers recent successful tool calls. Recency order is kept in
// a linked list so eviction of the stalest name is O(1).
type Tracker struct {
	mu         sync.RWMutex
	calls      map[string]*entry
	recency    *list.List // oldest at front
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	done       chan struct{}
	closed     bool
}

// New creates a tracker and starts its expiry sweeper. Non-positive
// arguments fall back to the defaults.
func New(ttl time.Duration, maxEntries int) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	t := &Tracker{
		calls:      make(map[string]*entry),
		recency:    list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		done:       make(chan struct{}),
	}
	go t.sweep(sweepInterval(ttl))
	return t
}

// Called reports whether any of the named tools succeeded within the TTL.
func (t *Tracker) Called(names ...string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.now()
	for _, name := range names {
		if e, ok := t.calls[name]; ok && now.Sub(e.at) < t.ttl {
			return true
		}
	}
	return false
}

// Record notes a successful call of name.
func (t *Tracker) Record(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}

	now := t.now()
	if e, ok := t.calls[name]; ok {
		e.at = now
		t.recency.MoveToBack(e.element)
		return
	}

	if len(t.calls) >= t.maxEntries {
		t.evictOldestLocked()
	}
	t.calls[name] = &entry{at: now, element: t.recency.PushBack(name)}
}

// Len returns the number of remembered tool names, expired or not.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.calls)
}

func (t *Tracker) evictOldestLocked() {
	front := t.recency.Front()
	if front == nil {
		return
	}
	name, _ := front.Value.(string)
	t.recency.Remove(front)
	delete(t.calls, name)
}

func (t *Tracker) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.expire()
		case <-t.done:
			return
		}
	}
}

// expire drops entries older than the TTL.
func (t *Tracker) expire() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for e := t.recency.Front(); e != nil; {
		next := e.Next()
		name, _ := e.Value.(string)
		if now.Sub(t.calls[name].at) < t.ttl {
			// Everything after this is newer.
			break
		}
		t.recency.Remove(e)
		delete(t.calls, name)
		e = next
	}
}

// Close stops the sweeper and forgets all calls. Safe to call repeatedly.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	close(t.done)
	t.closed = true
	t.calls = make(map[string]*entry)
	t.recency.Init()
}

func sweepInterval(ttl time.Duration) time.Duration {
	if ttl < time.Minute {
		return ttl
	}
	return time.Minute
}
