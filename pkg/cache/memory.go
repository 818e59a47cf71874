package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the default number of entries kept in memory.
const DefaultMemorySize = 512

// MemoryLayer is an in-process LRU cache in front of Redis.
// It is safe for concurrent use.
type MemoryLayer struct {
	entries *lru.Cache[string, *Entry]
}

// NewMemoryLayer creates a memory layer holding up to size entries.
func NewMemoryLayer(size int) *MemoryLayer {
	if size <= 0 {
		size = DefaultMemorySize
	}
	entries, _ := lru.New[string, *Entry](size)
	return &MemoryLayer{entries: entries}
}

// Get returns a live entry or ErrCacheMiss. Expired entries are evicted.
func (m *MemoryLayer) Get(key Key) (*Entry, error) {
	k := key.String()
	entry, ok := m.entries.Get(k)
	if !ok {
		return nil, ErrCacheMiss
	}
	if entry.IsExpired() {
		m.entries.Remove(k)
		return nil, ErrCacheMiss
	}
	CacheHits.WithLabelValues("memory").Inc()
	return entry, nil
}

// Set stores an entry unless it is already expired.
func (m *MemoryLayer) Set(key Key, entry *Entry) {
	if entry == nil || entry.TTL() <= 0 {
		return
	}
	m.entries.Add(key.String(), entry)
}

// Len returns the number of cached entries, expired ones included.
func (m *MemoryLayer) Len() int {
	return m.entries.Len()
}
