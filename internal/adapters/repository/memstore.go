package repository

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/tictac/pkg/metrics"
)

// item is one stored record. version is unique across the store so a record
// that is deleted and re-created never reuses a version a reader saw.
type item struct {
	value   []byte
	version uint64
}

type shard struct {
	mu    sync.RWMutex
	items map[string]item
}

// MemoryStore is a sharded in-process Store. Transact runs the transform
// outside the shard lock and commits with a compare-and-swap on the version.
type MemoryStore struct {
	shards     []*shard
	maxRetries int
	versions   atomic.Uint64
	closed     atomic.Bool

	metricsUpdateInterval time.Duration
	wg                    sync.WaitGroup
	stopChan              chan struct{}
	stopOnce              sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs a memory store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	cfg := newSettings(opts)
	s := &MemoryStore{
		shards:                make([]*shard, cfg.shardCount),
		maxRetries:            cfg.maxRetries,
		metricsUpdateInterval: cfg.metricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]item)}
	}

	metrics.UpdateStoreShardCount(len(s.shards))
	s.startMetricsUpdater(ctx)
	return s
}

func (s *MemoryStore) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) read(key string) ([]byte, uint64, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	it, ok := sh.items[key]
	sh.mu.RUnlock()
	if !ok {
		return nil, 0, false
	}
	return clone(it.value), it.version, true
}

// Get returns the stored value or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe("get", time.Now())
	if err := s.precheck(ctx, key); err != nil {
		return nil, err
	}
	v, _, ok := s.read(key)
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

// Set writes value unconditionally.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	defer observe("set", time.Now())
	if err := s.precheck(ctx, key); err != nil {
		return err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = item{value: clone(value), version: s.versions.Add(1)}
	sh.mu.Unlock()
	return nil
}

// Update merges fields into the stored document.
func (s *MemoryStore) Update(ctx context.Context, key string, fields Fields) error {
	defer observe("update", time.Now())
	_, err := s.transact(ctx, key, updateTransform(fields))
	return err
}

// Delete removes the record.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())
	if err := s.precheck(ctx, key); err != nil {
		return err
	}
	sh := s.shardFor(key)
	sh.mu.Lock()
	delete(sh.items, key)
	sh.mu.Unlock()
	return nil
}

// Transact applies fn with optimistic concurrency control.
func (s *MemoryStore) Transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	defer observe("transact", time.Now())
	return s.transact(ctx, key, fn)
}

func (s *MemoryStore) transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	if err := s.precheck(ctx, key); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, unavailable("transact", err)
		}
		current, version, _ := s.read(key)
		next, err := fn(current)
		if err != nil {
			return nil, err
		}
		if s.commit(key, version, next) {
			return clone(next), nil
		}
		metrics.RecordTransactionConflict(RecordKind(key))
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrContention, key, s.maxRetries)
}

// commit writes next iff the record still carries version (0 = absent).
func (s *MemoryStore) commit(key string, version uint64, next []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	it, ok := sh.items[key]
	switch {
	case ok && it.version != version:
		return false
	case !ok && version != 0:
		return false
	}
	if next == nil {
		delete(sh.items, key)
		return true
	}
	sh.items[key] = item{value: clone(next), version: s.versions.Add(1)}
	return true
}

// Scan returns every record under prefix ordered by key.
func (s *MemoryStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	defer observe("scan", time.Now())
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("scan", err)
	}
	var out []Entry
	for _, sh := range s.shards {
		sh.mu.RLock()
		for k, it := range sh.items {
			if strings.HasPrefix(k, prefix) {
				out = append(out, Entry{Key: k, Value: clone(it.value)})
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}

// Close stops the metrics updater. Later calls fail with ErrClosed.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.stopChan)
	})
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) precheck(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return unavailable("precheck", err)
	}
	return nil
}

// startMetricsUpdater starts a background goroutine that publishes shard sizes.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	total := 0
	for i, sh := range s.shards {
		sh.mu.RLock()
		n := len(sh.items)
		sh.mu.RUnlock()
		metrics.UpdateStoreRecordsPerShard(fmt.Sprintf("shard_%d", i), n)
		total += n
	}
	metrics.UpdateStoreRecordsTotal(total)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func observe(op string, start time.Time) {
	metrics.RecordStoreLatency(op, float64(time.Since(start).Microseconds())/1000)
}
