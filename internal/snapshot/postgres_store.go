package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore keeps snapshots in a single table, one row per session,
// with the record serialized as JSONB.
type PostgresStore struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS session_snapshots (
    session_id TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    saved_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`)
	})
	return s.schemaErr
}

func (s *PostgresStore) Save(ctx context.Context, rec Record) error {
	id := strings.TrimSpace(rec.SessionID)
	if id == "" {
		return errors.New("session_id is required")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_snapshots (session_id, record, saved_at)
VALUES ($1, $2, now())
ON CONFLICT (session_id) DO UPDATE SET record = EXCLUDED.record, saved_at = now()`,
		id, data)
	return err
}

func (s *PostgresStore) Load(ctx context.Context, sessionID string) (Record, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return Record{}, ErrNotFound
	}
	if err := s.ensureSchema(ctx); err != nil {
		return Record{}, err
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM session_snapshots WHERE session_id = $1`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Printf("snapshot: corrupt pg record for %s, removing: %v", id, err)
		_ = s.Delete(ctx, id)
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sessionID string) error {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return nil
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM session_snapshots WHERE session_id = $1`, id)
	return err
}

func (s *PostgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
