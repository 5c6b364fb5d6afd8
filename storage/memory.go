package storage

import (
	"context"
	"sync"
)

// MemoryMap implements Map in process memory.
type MemoryMap[V any] struct {
	mu      sync.RWMutex
	entries map[string]V
}

// NewMemoryMap creates an empty in-memory map.
func NewMemoryMap[V any]() *MemoryMap[V] {
	return &MemoryMap[V]{entries: make(map[string]V)}
}

func (m *MemoryMap[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *MemoryMap[V]) Insert(_ context.Context, key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = value
	return nil
}

func (m *MemoryMap[V]) InsertNew(_ context.Context, key string, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.entries[key]; exists {
		return ErrKeyExists
	}
	m.entries[key] = value
	return nil
}

// Iterate visits a snapshot of the entries taken when it is called.
func (m *MemoryMap[V]) Iterate(_ context.Context, fn func(key string, value V) error) error {
	m.mu.RLock()
	snapshot := make(map[string]V, len(m.entries))
	for k, v := range m.entries {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
