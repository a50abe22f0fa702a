package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/tictac/pkg/metrics"
)

const scanBatch = 256

// RedisStore keeps each record as a string value. Transact uses WATCH/MULTI
// and re-runs the transform when EXEC reports the watched key changed.
type RedisStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

var _ Store = (*RedisStore)(nil)

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping redis", err)
	}
	return NewRedisStore(client, opts...), nil
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...Option) *RedisStore {
	cfg := newSettings(opts)
	return &RedisStore{client: client, prefix: cfg.keyPrefix, maxRetries: cfg.maxRetries}
}

func (s *RedisStore) k(key string) string { return s.prefix + key }

// Get returns the stored value or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	defer observe("get", time.Now())
	if err := checkKey(key); err != nil {
		return nil, err
	}
	v, err := s.client.Get(ctx, s.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreError("get")
		return nil, unavailable("get", err)
	}
	return v, nil
}

// Set writes value unconditionally.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	defer observe("set", time.Now())
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.k(key), value, 0).Err(); err != nil {
		metrics.RecordStoreError("set")
		return unavailable("set", err)
	}
	return nil
}

// Update merges fields into the stored document.
func (s *RedisStore) Update(ctx context.Context, key string, fields Fields) error {
	defer observe("update", time.Now())
	_, err := s.transact(ctx, key, updateTransform(fields))
	return err
}

// Delete removes the record.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	defer observe("delete", time.Now())
	if err := checkKey(key); err != nil {
		return err
	}
	if err := s.client.Del(ctx, s.k(key)).Err(); err != nil {
		metrics.RecordStoreError("delete")
		return unavailable("delete", err)
	}
	return nil
}

// abortError carries a transform error out of the WATCH callback.
type abortError struct{ err error }

func (e *abortError) Error() string { return e.err.Error() }

// Transact applies fn with optimistic concurrency control.
func (s *RedisStore) Transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	defer observe("transact", time.Now())
	return s.transact(ctx, key, fn)
}

func (s *RedisStore) transact(ctx context.Context, key string, fn Transform) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	rk := s.k(key)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var committed []byte
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := tx.Get(ctx, rk).Bytes()
			switch {
			case errors.Is(err, redis.Nil):
				current = nil
			case err != nil:
				return err
			}

			next, err := fn(current)
			if err != nil {
				return &abortError{err: err}
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				if next == nil {
					p.Del(ctx, rk)
				} else {
					p.Set(ctx, rk, next, 0)
				}
				return nil
			})
			committed = next
			return err
		}, rk)

		var abort *abortError
		switch {
		case err == nil:
			return committed, nil
		case errors.As(err, &abort):
			return nil, abort.err
		case errors.Is(err, redis.TxFailedErr):
			metrics.RecordTransactionConflict(RecordKind(key))
			continue
		default:
			metrics.RecordStoreError("transact")
			return nil, unavailable("transact", err)
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrContention, key, s.maxRetries)
}

// Scan returns every record under prefix ordered by key.
func (s *RedisStore) Scan(ctx context.Context, prefix string) ([]Entry, error) {
	defer observe("scan", time.Now())
	var keys []string
	iter := s.client.Scan(ctx, 0, globEscape(s.k(prefix))+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		metrics.RecordStoreError("scan")
		return nil, unavailable("scan", err)
	}
	sort.Strings(keys)
	keys = slices.Compact(keys) // SCAN may repeat keys

	out := make([]Entry, 0, len(keys))
	for start := 0; start < len(keys); start += scanBatch {
		end := min(start+scanBatch, len(keys))
		vals, err := s.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			metrics.RecordStoreError("scan")
			return nil, unavailable("scan", err)
		}
		for i, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue // deleted between SCAN and MGET
			}
			out = append(out, Entry{Key: strings.TrimPrefix(keys[start+i], s.prefix), Value: []byte(str)})
		}
	}
	return out, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func globEscape(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
