package store

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore is an in-process record store with the same contract as the
// Redis store. It backs unit tests and local development without Redis.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory record store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string][]byte),
	}
}

func (s *MemoryStore) table(name string) map[string][]byte {
	t, ok := s.tables[name]
	if !ok {
		t = make(map[string][]byte)
		s.tables[name] = t
	}
	return t
}

// Get returns the value for key, or ErrRecordNotFound
func (s *MemoryStore) Get(ctx context.Context, table, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.tables[table][key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Put unconditionally upserts the value for key
func (s *MemoryStore) Put(ctx context.Context, table, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.table(table)[key] = append([]byte(nil), value...)
	return nil
}

// PutIfAbsent writes the value only if the key does not exist
func (s *MemoryStore) PutIfAbsent(ctx context.Context, table, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	if _, ok := t[key]; ok {
		return ErrRecordExists
	}
	t[key] = append([]byte(nil), value...)
	return nil
}

// Update applies fn to an existing record
func (s *MemoryStore) Update(ctx context.Context, table, key string, fn UpdateFunc) error {
	return s.compareAndSwap(table, key, fn, false)
}

// Apply is Update with upsert semantics
func (s *MemoryStore) Apply(ctx context.Context, table, key string, fn UpdateFunc) error {
	return s.compareAndSwap(table, key, fn, true)
}

func (s *MemoryStore) compareAndSwap(table, key string, fn UpdateFunc, upsert bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.table(table)
	current, ok := t[key]
	if !ok {
		if !upsert {
			return ErrRecordNotFound
		}
		current = nil
	}

	next, err := fn(current)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}

	t[key] = append([]byte(nil), next...)
	return nil
}

// Scan returns up to limit records from a table in map order
func (s *MemoryStore) Scan(ctx context.Context, table string, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	for key, value := range s.tables[table] {
		if limit > 0 && len(records) >= limit {
			break
		}
		records = append(records, Record{
			Key:   key,
			Value: append([]byte(nil), value...),
		})
	}
	return records, nil
}
