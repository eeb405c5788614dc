// Package dedupe tracks client request keys so a resubmitted analysis
// resolves to the analysis it originally created.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 10_000

// Tracker maps idempotency keys to analysis ids.
type Tracker interface {
	// Claim atomically binds key to analysisID unless key is already bound.
	// It returns the bound id and whether key had been claimed before.
	Claim(ctx context.Context, key, analysisID string) (string, bool)

	// Release forgets key so a failed submission can be retried with it.
	// Releasing a key bound to a different id is a no-op.
	Release(ctx context.Context, key, analysisID string)

	Size() int64
}

type entry struct {
	key        string
	analysisID string
}

// inMemoryTracker keeps at most maxSize keys and evicts the oldest claim first.
// maxSize <= 0 disables eviction.
type inMemoryTracker struct {
	mu      sync.Mutex
	byKey   map[string]*list.Element
	order   *list.List // front = newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryTracker creates a tracker with configuration options.
func NewInMemoryTracker(opts ...Option) Tracker {
	t := &inMemoryTracker{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(t)
	}
	t.byKey = make(map[string]*list.Element)
	t.order = list.New()
	return t
}

func (t *inMemoryTracker) Claim(_ context.Context, key, analysisID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if el, ok := t.byKey[key]; ok {
		return el.Value.(*entry).analysisID, true
	}
	if t.maxSize > 0 && t.order.Len() >= t.maxSize {
		t.evictOldest()
	}
	t.byKey[key] = t.order.PushFront(&entry{key: key, analysisID: analysisID})
	t.size.Add(1)
	return analysisID, false
}

func (t *inMemoryTracker) Release(_ context.Context, key, analysisID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	el, ok := t.byKey[key]
	if !ok || el.Value.(*entry).analysisID != analysisID {
		return
	}
	t.order.Remove(el)
	delete(t.byKey, key)
	t.size.Add(-1)
}

// evictOldest must be called with t.mu held.
func (t *inMemoryTracker) evictOldest() {
	el := t.order.Back()
	if el == nil {
		return
	}
	t.order.Remove(el)
	delete(t.byKey, el.Value.(*entry).key)
	t.size.Add(-1)
}

func (t *inMemoryTracker) Size() int64 {
	return t.size.Load()
}
