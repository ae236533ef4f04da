package collectionutils

import "sync"

// SafeMap is a map guarded by a read/write mutex.
type SafeMap[K comparable, V any] struct {
	data map[K]V
	mu   sync.RWMutex
}

func New[K comparable, V any]() *SafeMap[K, V] {
	return &SafeMap[K, V]{
		data: make(map[K]V),
	}
}

func (m *SafeMap[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

func (m *SafeMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, exists := m.data[key]
	return value, exists
}

func (m *SafeMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
}

// DeleteIf removes key only while its current value satisfies stale, so a value
// stored after the caller read the old one survives.
func (m *SafeMap[K, V]) DeleteIf(key K, stale func(V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, exists := m.data[key]
	if !exists || !stale(value) {
		return false
	}
	delete(m.data, key)
	return true
}

// DeleteFunc removes every entry for which stale returns true and reports how many went.
func (m *SafeMap[K, V]) DeleteFunc(stale func(K, V) bool) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, value := range m.data {
		if stale(key, value) {
			delete(m.data, key)
			removed++
		}
	}
	return removed
}

func (m *SafeMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
