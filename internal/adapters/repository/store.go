// Package repository provides the atomic-record store the arbiter runs on and
// a typed view of the records it keeps there.
package repository

import "context"

// Entry is one key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Fields is a partial JSON document applied by Update. A nil value removes
// the field.
type Fields map[string]any

// Transform maps the current value of a record (nil when absent) to its next
// value. A nil next value deletes the record; a non-nil error aborts the
// transaction and is returned unchanged by Transact. Transform may run more
// than once and must not have side effects.
type Transform func(current []byte) (next []byte, err error)

// Store is an addressable record store with an optimistic read-modify-write
// primitive. Values are JSON documents.
type Store interface {
	// Get returns the stored value or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value unconditionally.
	Set(ctx context.Context, key string, value []byte) error
	// Update merges fields into the top level of the stored document,
	// creating it when absent.
	Update(ctx context.Context, key string, fields Fields) error
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context, key string) error
	// Transact applies fn to the current value and commits only if nothing
	// else committed to key in between, re-running fn on conflict. It returns
	// the committed value.
	Transact(ctx context.Context, key string, fn Transform) ([]byte, error)
	// Scan returns every record whose key starts with prefix, ordered by key.
	Scan(ctx context.Context, prefix string) ([]Entry, error)
	// Close releases the store.
	Close() error
}
