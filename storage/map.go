package storage

import (
	"context"
	"errors"
)

// ErrKeyExists is returned by InsertNew when the key is already present.
var ErrKeyExists = errors.New("key already exists")

// Map is a unique-key mapping from strings to values.
type Map[V any] interface {
	// Get returns the value stored under key and whether it was present.
	Get(ctx context.Context, key string) (V, bool, error)
	// Insert stores value under key, replacing any previous value.
	Insert(ctx context.Context, key string, value V) error
	// InsertNew stores value under key only if the key is absent.
	InsertNew(ctx context.Context, key string, value V) error
	// Iterate calls fn for every entry. Iteration stops at the first error.
	Iterate(ctx context.Context, fn func(key string, value V) error) error
}

// Collect reads every entry of m into a plain map.
func Collect[V any](ctx context.Context, m Map[V]) (map[string]V, error) {
	out := make(map[string]V)
	err := m.Iterate(ctx, func(key string, value V) error {
		out[key] = value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
