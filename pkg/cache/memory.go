package cache

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps buckets in process memory. Entries are held encoded so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]map[string][]byte),
	}
}

func (m *MemoryStore) Open(_ context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(bucket)
	return nil
}

func (m *MemoryStore) openLocked(bucket string) map[string][]byte {
	entries, ok := m.buckets[bucket]
	if !ok {
		entries = make(map[string][]byte)
		m.buckets[bucket] = entries
		m.order = append(m.order, bucket)
	}
	return entries
}

func (m *MemoryStore) Put(_ context.Context, bucket string, key RequestKey, entry *CacheEntry) error {
	data, err := encodeEntry(entry)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.openLocked(bucket)[key.String()] = data
	return nil
}

func (m *MemoryStore) Get(_ context.Context, bucket string, key RequestKey) (*CacheEntry, bool, error) {
	m.mu.RLock()
	data, ok := m.buckets[bucket][key.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	entry, err := decodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (m *MemoryStore) Match(ctx context.Context, key RequestKey) (*CacheEntry, bool, error) {
	for _, bucket := range m.snapshotOrder() {
		entry, ok, err := m.Get(ctx, bucket, key)
		if err != nil || ok {
			return entry, ok, err
		}
	}
	return nil, false, nil
}

func (m *MemoryStore) Keys(_ context.Context, bucket string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Buckets(_ context.Context) ([]string, error) {
	return m.snapshotOrder(), nil
}

func (m *MemoryStore) Delete(_ context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		return false, nil
	}
	delete(m.buckets, bucket)
	for i, name := range m.order {
		if name == bucket {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) snapshotOrder() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}
