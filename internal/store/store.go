// Package store persists session records and the LLM request event log.
// The root package is the SQLite backend; memory and firestore live in
// subpackages and share the SessionRepo contract.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Store is a SQLite database holding sessions and LLM events.
type Store struct {
	db *sql.DB
}

// Open connects to the SQLite database at dsn, applies pragmas and
// creates the schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps pragmas in effect for every statement and
	// serializes writers the way SQLite wants.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := migrate(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{db: db}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionRepo returns the SQLite-backed SessionRepo.
func (s *Store) SessionRepo() SessionRepo {
	return &sessionRepo{db: s.db}
}

// EventRepo returns the LLM event log.
func (s *Store) EventRepo() *EventLog {
	return &EventLog{db: s.db}
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sessions (
		user_id               TEXT NOT NULL,
		session_id            TEXT NOT NULL,
		transcript            TEXT NOT NULL DEFAULT '',
		category              TEXT NOT NULL DEFAULT '',
		scenario_title        TEXT NOT NULL DEFAULT '',
		scenario_prompt       TEXT NOT NULL DEFAULT '',
		feedback_status       TEXT NOT NULL,
		created_at            INTEGER NOT NULL,
		overall_score         REAL,
		clarity               REAL,
		confidence            REAL,
		engagement            REAL,
		relevance             REAL,
		summary               TEXT,
		strengths             TEXT,
		improvements          TEXT,
		xp_earned             REAL,
		feedback_generated_by TEXT,
		PRIMARY KEY (user_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_status_created
		ON sessions (feedback_status, created_at)`,
	`CREATE TABLE IF NOT EXISTS llm_request_events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp     INTEGER NOT NULL,
		provider      TEXT NOT NULL,
		model         TEXT NOT NULL,
		purpose       TEXT NOT NULL,
		input_tokens  INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		latency_ms    INTEGER NOT NULL DEFAULT 0,
		success       INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		request_body  TEXT NOT NULL DEFAULT '',
		response_body TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_llm_events_purpose ON llm_request_events (purpose)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDBPath resolves the database file path in priority order:
// 1. SPEECHCOACH_DB environment variable
// 2. $XDG_DATA_HOME/speechcoach/speechcoach.db
// 3. ~/.local/share/speechcoach/speechcoach.db
func DefaultDBPath() (string, error) {
	if p := os.Getenv("SPEECHCOACH_DB"); p != "" {
		return p, EnsureDir(p)
	}

	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}

	p := filepath.Join(dataHome, "speechcoach", "speechcoach.db")
	return p, EnsureDir(p)
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
