package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"siteplan/internal/safeio"
)

// FileStore keeps one JSON file per session under a root directory. Writes
// are atomic so a crash mid-save never leaves a torn record behind.
type FileStore struct {
	root string
	mu   sync.Mutex

	dirOnce sync.Once
	dir     *safeio.Dir
	dirErr  error
}

func NewFileStore(root string) *FileStore {
	if strings.TrimSpace(root) == "" {
		root = filepath.Join("tmp", "sessions")
	}
	return &FileStore{root: root}
}

func (s *FileStore) ensureDir() (*safeio.Dir, error) {
	s.dirOnce.Do(func() {
		s.dir, s.dirErr = safeio.NewDir(s.root)
	})
	return s.dir, s.dirErr
}

func fileFor(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", fmt.Errorf("session_id is required")
	}
	return sessionID + ".json", nil
}

func (s *FileStore) Save(ctx context.Context, rec Record) error {
	_ = ctx
	name, err := fileFor(rec.SessionID)
	if err != nil {
		return err
	}
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return dir.WriteFile(name, data)
}

func (s *FileStore) Load(ctx context.Context, sessionID string) (Record, error) {
	_ = ctx
	name, err := fileFor(sessionID)
	if err != nil {
		return Record{}, err
	}
	dir, err := s.ensureDir()
	if err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, err := dir.ReadFile(name)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		// Corrupt record is treated as absence: remove it and start fresh.
		log.Printf("snapshot: corrupt record for %s, removing: %v", sessionID, err)
		_ = dir.Remove(name)
		return Record{}, ErrNotFound
	}
	if strings.TrimSpace(rec.SessionID) == "" {
		rec.SessionID = sessionID
	}
	return rec, nil
}

func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	_ = ctx
	name, err := fileFor(sessionID)
	if err != nil {
		return err
	}
	dir, err := s.ensureDir()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return dir.Remove(name)
}
