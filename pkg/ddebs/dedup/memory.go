package dedup

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Memory is an in-process Cache. It is durable only for the lifetime of the
// value, which makes it useful for tests: Restart models a process restart by
// handing back a fresh cache seeded with everything that was successfully Set.
type Memory[V any] struct {
	// FailSet, if set, is consulted before every write. A non-nil error aborts
	// the write as if the process died mid-persist: the entry is not stored.
	FailSet func(key string) error

	mu      sync.RWMutex
	entries map[string]V
	modTime time.Time
	sets    int
}

var _ Cache[bool] = (*Memory[bool])(nil)

// NewMemory returns an empty in-memory cache.
func NewMemory[V any]() *Memory[V] {
	return &Memory[V]{entries: make(map[string]V)}
}

func (m *Memory[V]) Get(_ context.Context, key string) (V, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory[V]) Set(ctx context.Context, key string, value V) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		if err := m.FailSet(key); err != nil {
			return fmt.Errorf("persisting %s: %w", key, err)
		}
	}
	m.entries[key] = value
	m.modTime = time.Now()
	m.sets++
	return nil
}

func (m *Memory[V]) Range(ctx context.Context, fn func(key string, value V) error) error {
	m.mu.RLock()
	snapshot := maps.Clone(m.entries)
	m.mu.RUnlock()

	for _, k := range slices.Sorted(maps.Keys(snapshot)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory[V]) Len(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *Memory[V]) ModTime(_ context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.modTime, nil
}

// Sets returns how many writes have succeeded.
func (m *Memory[V]) Sets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sets
}

// Restart returns a new cache holding the entries that were durably stored.
func (m *Memory[V]) Restart() *Memory[V] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &Memory[V]{entries: maps.Clone(m.entries), modTime: m.modTime}
}
