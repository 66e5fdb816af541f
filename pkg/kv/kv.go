// Package kv defines the string key-value surface cart snapshots are persisted through.
package kv

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrNotFound is returned by Get when the key holds no value.
	ErrNotFound = errors.New("kv: key not found")
	// ErrConflict is returned by Update when the key changed between its read and its write.
	ErrConflict = errors.New("kv: concurrent update")
)

// Store is a namespaced string key-value storage with last-writer-wins semantics.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// UpdateFunc receives the current value of a key, found is false when the key is
// absent, and returns the value to write.
type UpdateFunc func(current string, found bool) (string, error)

// Versioned is a Store shared by several writers. Update is an optimistic
// read-modify-write: fn's result is written only if the key was not modified since it
// was read, otherwise nothing is written and ErrConflict is returned.
type Versioned interface {
	Store
	Update(ctx context.Context, key string, fn UpdateFunc) error
}

// UpdateWithRetry calls s.Update until it stops reporting ErrConflict, at most
// attempts times. fn may run once per attempt.
func UpdateWithRetry(ctx context.Context, s Versioned, key string, attempts int, fn UpdateFunc) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		err = s.Update(ctx, key, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return err
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Update runs fn under the write lock, so it never conflicts.
func (m *Memory) Update(_ context.Context, key string, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, found := m.data[key]
	next, err := fn(current, found)
	if err != nil {
		return err
	}
	m.data[key] = next
	return nil
}

// Keys returns the number of stored keys.
func (m *Memory) Keys() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
