package store

import (
	"context"
	"errors"
)

// Store errors
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
	ErrWriteConflict  = errors.New("write conflict")

	// ErrNoChange may be returned by an UpdateFunc to accept the current
	// value without issuing a write. Update and Apply treat it as success.
	ErrNoChange = errors.New("no change")
)

// Record is one key/value pair returned by Scan
type Record struct {
	Key   string
	Value []byte
}

// UpdateFunc transforms the current value of a record into its next value.
// It runs inside an optimistic-concurrency loop and must be side-effect
// free; it may be invoked more than once if a concurrent writer wins.
type UpdateFunc func(current []byte) ([]byte, error)

// RecordStore is a uniform contract over a key-value store. Values are
// opaque documents; tables are independent flat collections keyed by a
// single primary key. The adapter carries no business semantics.
type RecordStore interface {
	// Get returns the value for key, or ErrRecordNotFound.
	Get(ctx context.Context, table, key string) ([]byte, error)

	// Put unconditionally upserts the value for key.
	Put(ctx context.Context, table, key string, value []byte) error

	// PutIfAbsent writes the value only if the key does not exist,
	// returning ErrRecordExists otherwise.
	PutIfAbsent(ctx context.Context, table, key string, value []byte) error

	// Update applies fn to an existing record under a version check.
	// It returns ErrRecordNotFound if the key is absent and
	// ErrWriteConflict if concurrent writers keep winning the race.
	Update(ctx context.Context, table, key string, fn UpdateFunc) error

	// Apply is Update with upsert semantics: fn sees nil for an absent key.
	Apply(ctx context.Context, table, key string, fn UpdateFunc) error

	// Scan returns an unordered snapshot of up to limit records from a
	// table (all records when limit <= 0). No consistency is guaranteed
	// across concurrent writers.
	Scan(ctx context.Context, table string, limit int) ([]Record, error)
}
