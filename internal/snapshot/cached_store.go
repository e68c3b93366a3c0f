package snapshot

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached fronts any Store with an in-memory LRU so repeated loads (every
// page render re-reads the snapshot) skip the backend.
type Cached struct {
	backend Store
	cache   *lru.Cache[string, Record]
}

func NewCached(backend Store, size int) (*Cached, error) {
	if size <= 0 {
		size = 128
	}
	c, err := lru.New[string, Record](size)
	if err != nil {
		return nil, err
	}
	return &Cached{backend: backend, cache: c}, nil
}

func (s *Cached) Save(ctx context.Context, rec Record) error {
	if err := s.backend.Save(ctx, rec); err != nil {
		// Backend failure must not poison the cache with state the
		// backend never saw.
		s.cache.Remove(strings.TrimSpace(rec.SessionID))
		return err
	}
	s.cache.Add(strings.TrimSpace(rec.SessionID), rec)
	return nil
}

func (s *Cached) Load(ctx context.Context, sessionID string) (Record, error) {
	id := strings.TrimSpace(sessionID)
	if rec, ok := s.cache.Get(id); ok {
		return rec, nil
	}
	rec, err := s.backend.Load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	s.cache.Add(id, rec)
	return rec, nil
}

func (s *Cached) Delete(ctx context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	s.cache.Remove(id)
	return s.backend.Delete(ctx, id)
}
