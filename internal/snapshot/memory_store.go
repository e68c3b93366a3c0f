package snapshot

import (
	"context"
	"strings"
	"sync"
)

// MemoryStore is the in-process backend used by tests and one-off runs.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Record)}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	_ = ctx
	id := strings.TrimSpace(rec.SessionID)
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	s.byID[id] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(ctx context.Context, sessionID string) (Record, error) {
	_ = ctx
	s.mu.RLock()
	rec, ok := s.byID[strings.TrimSpace(sessionID)]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	_ = ctx
	s.mu.Lock()
	delete(s.byID, strings.TrimSpace(sessionID))
	s.mu.Unlock()
	return nil
}
