// Package dedupe tracks command keys a process has already taken on, so a
// command that is redelivered while still in flight (or after it was handled)
// is dropped instead of dispatched twice.
package dedupe

import (
	"container/list"
	"context"
	"sync"
)

// Deduper records command keys.
type Deduper interface {
	// SeenAndRecord reports whether key was already recorded and records it
	// if not. The check and the record are atomic.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord forgets key so a later delivery of it is dispatched again.
	Unrecord(ctx context.Context, key string)

	// Size returns the number of recorded keys.
	Size() int
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element
	order   *list.List // oldest at the front
	maxSize int        // <= 0 means unbounded
}

// NewInMemoryDeduper creates a deduper. When bounded, the oldest key is
// evicted first.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[key]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		oldest := d.order.Front()
		d.order.Remove(oldest)
		delete(d.seen, oldest.Value.(string))
	}
	d.seen[key] = d.order.PushBack(key)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, ok := d.seen[key]; ok {
		d.order.Remove(el)
		delete(d.seen, key)
	}
}

func (d *inMemoryDeduper) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.order.Len()
}
