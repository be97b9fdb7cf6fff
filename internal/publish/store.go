package publish

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chatgate/internal/domain"
)

// RosterStore persists resolved publish targets in SQLite. Adapters that
// resolve names from observed traffic start each session with an empty
// directory, so successful resolutions are remembered here and consulted
// as a fallback on the next run.
type RosterStore struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRosterStore(dbPath string, logger *slog.Logger) (*RosterStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &RosterStore{db: db, logger: logger}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return store, nil
}

func (s *RosterStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS roster (
		kind        TEXT NOT NULL,           -- 'contact' | 'group'
		name        TEXT NOT NULL,           -- lowercase lookup key
		target_id   TEXT NOT NULL,
		target_name TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (kind, name)
	);

	CREATE TABLE IF NOT EXISTS publish_log (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		content_len INTEGER NOT NULL,
		success     INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		ignored     INTEGER NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_publish_time ON publish_log(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *RosterStore) Close() error { return s.db.Close() }

// Remember upserts a resolved target under its lookup name.
func (s *RosterStore) Remember(ctx context.Context, kind, name string, target domain.Target) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roster (kind, name, target_id, target_name, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(kind, name) DO UPDATE SET
		   target_id = excluded.target_id,
		   target_name = excluded.target_name,
		   updated_at = excluded.updated_at`,
		kind, name, target.ID, target.Name, time.Now())
	return err
}

// Lookup returns the remembered target for a name, or false.
func (s *RosterStore) Lookup(ctx context.Context, kind, name string) (domain.Target, bool) {
	var t domain.Target
	err := s.db.QueryRowContext(ctx,
		`SELECT target_id, target_name FROM roster WHERE kind = ? AND name = ?`,
		kind, name).Scan(&t.ID, &t.Name)
	if err == sql.ErrNoRows {
		return domain.Target{}, false
	}
	if err != nil {
		s.logger.Warn("roster lookup failed", "kind", kind, "name", name, "err", err)
		return domain.Target{}, false
	}
	return t, true
}

// RosterEntry is one remembered target with its lookup key.
type RosterEntry struct {
	Kind   string
	Name   string
	Target domain.Target
}

// All returns every remembered target. Used as the default recipient set
// when a publish request names no rooms or friends.
func (s *RosterStore) All(ctx context.Context) ([]RosterEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, name, target_id, target_name FROM roster ORDER BY kind, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var e RosterEntry
		if err := rows.Scan(&e.Kind, &e.Name, &e.Target.ID, &e.Target.Name); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordPublish appends one audit row per publish request.
func (s *RosterStore) RecordPublish(ctx context.Context, contentLen, success, failed, ignored int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO publish_log (content_len, success, failed, ignored) VALUES (?, ?, ?, ?)`,
		contentLen, success, failed, ignored)
	return err
}
