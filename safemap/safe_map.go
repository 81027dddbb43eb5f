// Package safemap provides a generic map guarded by a single mutex. Unlike
// sync.Map it supports atomically taking every entry at once, which callers
// use to hand off ownership of a whole set of values in one step.
package safemap

import "sync"

// SafeMap is a concurrent map that is safe for use by multiple goroutines.
// All operations are serialized by one mutex, so a TakeAll never observes
// a half-applied Store or Delete.
//
// SafeMap must not be copied after first use.
type SafeMap[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]V
}

// NewSafeMap returns a new empty SafeMap ready for use.
//
// Returns:
//   - A pointer to a new SafeMap[K, V]
func NewSafeMap[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{m: make(map[K]V)}
}

// Store sets the value for key k, overwriting any existing value.
//
// Parameters:
//   - k: The key to store
//   - v: The value to associate with k
func (m *SafeMap[K, V]) Store(k K, v V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[k] = v
}

// Load returns the value for key k and whether it was present.
//
// Parameters:
//   - k: The key to look up
//
// Returns:
//   - The value associated with k, or the zero value of V if not found
//   - true if the key was present, false otherwise
func (m *SafeMap[K, V]) Load(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[k]
	return v, ok
}

// LoadAndDelete removes the entry for key k and returns its previous value.
// Exactly one of any number of concurrent callers for the same key gets
// ok == true.
//
// Parameters:
//   - k: The key to remove
//
// Returns:
//   - The removed value, or the zero value of V if not found
//   - true if this call removed the entry, false otherwise
func (m *SafeMap[K, V]) LoadAndDelete(k K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.m[k]
	if ok {
		delete(m.m, k)
	}

	return v, ok
}

// TakeAll removes every entry and returns them. The map is empty when
// TakeAll returns; entries stored afterwards are not included.
//
// Returns:
//   - A map holding all entries that were present
func (m *SafeMap[K, V]) TakeAll() map[K]V {
	m.mu.Lock()
	defer m.mu.Unlock()
	taken := m.m
	m.m = make(map[K]V)
	return taken
}

// Len returns the number of entries in the map.
func (m *SafeMap[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.m)
}

// Has reports whether key k is present in the map.
func (m *SafeMap[K, V]) Has(k K) bool {
	_, ok := m.Load(k)
	return ok
}
