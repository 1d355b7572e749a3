// SPDX-License-Identifier: MIT

// Package history keeps a SQLite ledger of sync runs.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/epgsync/internal/persistence/sqlite"
)

var (
	// ErrNotFound is returned by Latest when no run has been recorded.
	ErrNotFound = errors.New("history: no runs recorded")
	// ErrCorrupt is returned by Open when the integrity check fails.
	ErrCorrupt = errors.New("history: database corrupt")
)

var schema = []string{`
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	outcome     TEXT NOT NULL,
	source_url  TEXT NOT NULL DEFAULT '',
	tier        TEXT NOT NULL DEFAULT '',
	attempts    INTEGER NOT NULL DEFAULT 0,
	checksum    TEXT NOT NULL DEFAULT '',
	channels    INTEGER NOT NULL DEFAULT 0,
	programmes  INTEGER NOT NULL DEFAULT 0,
	repair      TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT ''
)`,
	`CREATE INDEX IF NOT EXISTS runs_started_at ON runs (started_at DESC)`,
}

const columns = "id, started_at, finished_at, outcome, source_url, tier, attempts, checksum, channels, programmes, repair, error"

// Entry is one recorded sync run.
type Entry struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	SourceURL  string    `json:"source_url,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	Attempts   int       `json:"attempts"`
	Checksum   string    `json:"checksum,omitempty"`
	Channels   int       `json:"channels"`
	Programmes int       `json:"programmes"`
	Repair     string    `json:"repair,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Store is the run ledger.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path and verifies its integrity.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}

	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	issues, err := sqlite.VerifyIntegrity(ctx, db, "quick")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: %w", err)
	}
	if issues != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(issues, "; "))
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("history: migrate: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores e. Recording the same ID twice replaces the earlier row.
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO runs ("+columns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.StartedAt.UnixNano(), e.FinishedAt.UnixNano(), e.Outcome, e.SourceURL, e.Tier,
		e.Attempts, e.Checksum, e.Channels, e.Programmes, e.Repair, e.Error)
	if err != nil {
		return fmt.Errorf("history: record run %s: %w", e.ID, err)
	}
	return nil
}

// Latest returns the most recently started run.
func (s *Store) Latest(ctx context.Context) (Entry, error) {
	runs, err := s.Recent(ctx, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(runs) == 0 {
		return Entry{}, ErrNotFound
	}
	return runs[0], nil
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+columns+" FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?", n)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e                 Entry
			started, finished int64
		)
		if err := rows.Scan(&e.ID, &started, &finished, &e.Outcome, &e.SourceURL, &e.Tier,
			&e.Attempts, &e.Checksum, &e.Channels, &e.Programmes, &e.Repair, &e.Error); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		e.StartedAt = time.Unix(0, started).UTC()
		e.FinishedAt = time.Unix(0, finished).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: read runs: %w", err)
	}
	return out, nil
}
