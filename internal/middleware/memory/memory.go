// Package memory is a tiny TTL cache backing the Cached middleware.
package memory

import (
	"sync"
	"time"
)

type entry struct {
	content   []byte
	expiresAt time.Time
}

// Storage ...
type Storage struct {
	mu sync.RWMutex
	m  map[string]entry
}

// NewStorage ...
func NewStorage() *Storage {
	return &Storage{
		m: map[string]entry{},
	}
}

// Get returns nil when the key is missing or expired.
func (s *Storage) Get(key string) []byte {
	s.mu.RLock()
	e, ok := s.m[key]
	s.mu.RUnlock()

	if !ok || time.Now().After(e.expiresAt) {
		return nil
	}

	return e.content
}

// Set ...
func (s *Storage) Set(key string, content []byte, duration time.Duration) {
	s.mu.Lock()
	s.m[key] = entry{
		content:   content,
		expiresAt: time.Now().Add(duration),
	}
	s.mu.Unlock()
}
