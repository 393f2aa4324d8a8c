package eventstore

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper remembers recently seen event ids.
type Deduper interface {
	// Seen records key and reports whether it was already present in the
	// window. It must be atomic: of concurrent callers with the same key,
	// exactly one observes false.
	Seen(ctx context.Context, key string) (bool, error)
}

type windowEntry struct {
	key    string
	seenAt time.Time
}

// MemoryDeduper is a bounded in-process window of event ids. The oldest ids are
// evicted once capacity is reached or once they are older than ttl.
type MemoryDeduper struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	items   map[string]*list.Element
	entries *list.List
}

// NewMemoryDeduper creates a window holding up to capacity ids. A zero ttl
// keeps ids until they are evicted by capacity. It panics if capacity is not
// positive.
func NewMemoryDeduper(capacity int, ttl time.Duration) *MemoryDeduper {
	if capacity <= 0 {
		panic("eventstore: dedup window capacity must be positive")
	}
	return &MemoryDeduper{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element, capacity),
		entries:  list.New(),
	}
}

// Seen expires stale ids, then records key.
func (d *MemoryDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.expire(now)
	if _, ok := d.items[key]; ok {
		return true, nil
	}
	d.items[key] = d.entries.PushFront(&windowEntry{key: key, seenAt: now})
	if d.entries.Len() > d.capacity {
		d.remove(d.entries.Back())
	}
	return false, nil
}

// Len returns the number of ids currently in the window.
func (d *MemoryDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Len()
}

// Must be called with lock held. Entries are ordered by insertion time, so
// expiry stops at the first live entry.
func (d *MemoryDeduper) expire(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for e := d.entries.Back(); e != nil; e = d.entries.Back() {
		if now.Sub(e.Value.(*windowEntry).seenAt) < d.ttl {
			return
		}
		d.remove(e)
	}
}

// Must be called with lock held.
func (d *MemoryDeduper) remove(e *list.Element) {
	d.entries.Remove(e)
	delete(d.items, e.Value.(*windowEntry).key)
}

// noDedup accepts every event.
type noDedup struct{}

func (noDedup) Seen(context.Context, string) (bool, error) { return false, nil }
