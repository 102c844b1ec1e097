package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// invalidationLogSize bounds the removal log to the most recent keys.
const invalidationLogSize = 256

type entry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryStore is a process local Store used when Redis is not configured.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]entry
	removed []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: map[string]entry{}}
}

func (s *MemoryStore) Get(_ context.Context, key string, dst any) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		ok = false
	}
	s.mu.Unlock()
	if !ok {
		return ErrMiss
	}
	return json.Unmarshal(e.raw, dst)
}

func (s *MemoryStore) Set(_ context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	e := entry{raw: raw}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *MemoryStore) Invalidate(_ context.Context, events ...Event) error {
	keys := Keys(events...)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
		s.removed = append(s.removed, k)
	}
	if n := len(s.removed); n > invalidationLogSize {
		s.removed = append(s.removed[:0], s.removed[n-invalidationLogSize:]...)
	}
	return nil
}

// InvalidatedKeys returns the most recently removed keys, oldest first.
func (s *MemoryStore) InvalidatedKeys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}
