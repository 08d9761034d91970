// Package persist implements the durable storage layer for session history,
// bookmarks, and settings on top of a byte-capacity-bounded key/value store.
//
// Capacity failures are handled entirely inside this package: the store
// evicts the single oldest logical item and retries until a write succeeds
// or the collection is empty, in which case the stored key is cleared and
// the condition logged. Data loss through eviction is never surfaced as a
// user-facing error.
package persist

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// Common errors
var (
	// ErrNotFound is returned by Get when the key has never been stored.
	ErrNotFound = errors.New("key not found")

	// ErrCapacityExceeded is returned by Set when the write does not fit.
	// Backend-specific capacity errors are classified by IsCapacityError.
	ErrCapacityExceeded = errors.New("storage capacity exceeded")
)

// KV is the storage boundary: a capacity-bounded key/value store. Set may
// fail with a capacity-class error; callers classify it with IsCapacityError
// regardless of the backend's specific signaling.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// capacityMarkers are substrings of backend error texts that signal a
// capacity failure: redis maxmemory, sqlite/posix disk-full, browser-style
// quota errors.
var capacityMarkers = []string{
	"oom",
	"maxmemory",
	"no space left",
	"disk is full",
	"database or disk is full",
	"quota",
}

// IsCapacityError reports whether err is a capacity-class storage failure.
// Any backend's capacity error is treated uniformly.
func IsCapacityError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCapacityExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range capacityMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// MemoryKV is an in-memory KV with an optional total-byte capacity. It backs
// development setups and the eviction tests, where a deterministic capacity
// bound is needed.
type MemoryKV struct {
	mu       sync.RWMutex
	data     map[string][]byte
	capacity int // total value bytes; 0 means unlimited
}

// NewMemoryKV creates an in-memory store. capacity bounds the sum of stored
// value sizes in bytes; 0 disables the bound.
func NewMemoryKV(capacity int) *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte), capacity: capacity}
}

// Get returns the stored value or ErrNotFound.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores the value, failing with ErrCapacityExceeded when the write
// would push total stored bytes past the capacity bound.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.capacity > 0 {
		total := len(value)
		for k, v := range m.data {
			if k != key {
				total += len(v)
			}
		}
		if total > m.capacity {
			return ErrCapacityExceeded
		}
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// Delete removes the key. Deleting a missing key is not an error.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
