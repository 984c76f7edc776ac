package kv

import (
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store with the same quota semantics as the
// sqlite-backed one. Used in tests and as a degraded fallback when no
// database can be opened.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]string
	quota int64
}

// NewMemoryStore creates an in-memory store. quota <= 0 disables quota
// checks.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{items: make(map[string]string), quota: quota}
}

func (s *MemoryStore) GetItem(key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key], nil
}

func (s *MemoryStore) SetItem(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.quota > 0 {
		used := int64(0)
		for k, v := range s.items {
			if k == key {
				continue
			}
			used += int64(len(k)) + int64(len(v))
		}
		if used+int64(len(key))+int64(len(value)) > s.quota {
			return ErrQuotaExceeded
		}
	}

	s.items[key] = value
	return nil
}

func (s *MemoryStore) RemoveItem(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Len reports the number of stored items.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
