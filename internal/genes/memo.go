package genes

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoaderFunc produces the value for a key on a memo miss.
type LoaderFunc[K any, V any] func(ctx context.Context, key K) (V, error)

// Memo is an unbounded in-process cache in front of a loader. Values are
// kept for the life of the Memo; errors are not cached, so a failed key is
// retried on the next Get. Concurrent misses for the same key share one
// loader call.
type Memo[K interface {
	comparable
	fmt.Stringer
}, V any] struct {
	mu      sync.RWMutex
	entries map[K]V
	group   singleflight.Group
	load    LoaderFunc[K, V]
}

// NewMemo creates a memo backed by load.
func NewMemo[K interface {
	comparable
	fmt.Stringer
}, V any](load LoaderFunc[K, V]) *Memo[K, V] {
	return &Memo[K, V]{
		entries: make(map[K]V),
		load:    load,
	}
}

// Peek returns the cached value for key without loading.
func (m *Memo[K, V]) Peek(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok
}

// Get returns the cached value for key, loading it on a miss.
func (m *Memo[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := m.Peek(key); ok {
		return v, nil
	}

	res, err, _ := m.group.Do(key.String(), func() (any, error) {
		if v, ok := m.Peek(key); ok {
			return v, nil
		}
		v, err := m.load(ctx, key)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.entries[key] = v
		m.mu.Unlock()
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

// Len returns the number of cached entries.
func (m *Memo[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
