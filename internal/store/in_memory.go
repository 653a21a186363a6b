package store

import (
	"context"
	"sync"
)

// inMemory implements KVStore using an in-memory map.
type inMemory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewInMemoryStore creates a new instance of KVStore that keeps values in memory only.
func NewInMemoryStore() KVStore {
	return &inMemory{
		values: make(map[string]string),
	}
}

// Get retrieves a value by its key.
func (s *inMemory) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores a value under its key.
func (s *inMemory) Set(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
	return nil
}
