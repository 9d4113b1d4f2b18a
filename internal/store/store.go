package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/teamclaw/teamclaw/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// WAL lets channel goroutines log messages while readers query; the
	// busy timeout makes concurrent writers wait instead of failing.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id            TEXT PRIMARY KEY,
			name          TEXT NOT NULL,
			description   TEXT,
			system_prompt TEXT,
			backend       TEXT NOT NULL DEFAULT 'echo',
			model         TEXT,
			position      INTEGER NOT NULL DEFAULT 0,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id  TEXT NOT NULL,
			channel     TEXT NOT NULL,
			channel_id  TEXT,
			sender      TEXT NOT NULL,
			agent_id    TEXT,
			content     TEXT NOT NULL,
			mentions    TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(channel, channel_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			id          TEXT PRIMARY KEY,
			message_id  TEXT NOT NULL,
			channel     TEXT NOT NULL,
			task        TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'pending',
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS subtasks (
			id                TEXT PRIMARY KEY,
			run_id            TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
			position          INTEGER NOT NULL,
			description       TEXT NOT NULL,
			assigned_agent_id TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'pending',
			result            TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subtasks_run ON subtasks(run_id, position)`,
		`CREATE TABLE IF NOT EXISTS scheduled_prompts (
			name         TEXT PRIMARY KEY,
			schedule     TEXT NOT NULL,
			channel      TEXT NOT NULL,
			channel_id   TEXT,
			content      TEXT NOT NULL,
			next_run_at  INTEGER,
			last_run_at  INTEGER,
			last_status  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_prompts_next_run ON scheduled_prompts(next_run_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

// Snapshot writes a consistent copy of the database to path, which must
// not exist yet.
func (s *Store) Snapshot(path string) error {
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("snapshot database: %w", err)
	}
	return nil
}
