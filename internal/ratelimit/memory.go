package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps counters in memory. It's only suitable when a single
// process is serving requests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
	}
}

func (s *MemoryStore) Hit(_ context.Context, key string, now time.Time, window time.Duration) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || now.Sub(e.WindowStart) > window {
		e = &Entry{WindowStart: now}
		s.entries[key] = e
	}

	e.Count++
	return *e, nil
}

func (s *MemoryStore) Evict(now time.Time, maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.entries {
		if now.Sub(e.WindowStart) > maxAge {
			delete(s.entries, k)
		}
	}
}

// Len returns the number of keys in the store.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}
