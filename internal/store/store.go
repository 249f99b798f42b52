package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtzanidakis/counterman/internal/config"
	"github.com/mtzanidakis/counterman/internal/vault"
	_ "modernc.org/sqlite"
)

type Store struct {
	db    *sql.DB
	vault *vault.Vault
}

type Option func(*Store)

// WithVault encrypts message and reply content at rest.
func WithVault(v *vault.Vault) Option {
	return func(s *Store) { s.vault = v }
}

func New(cfg config.StoreConfig, opts ...Option) (*Store, error) {
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

	// WAL for concurrent turns; busy timeout so writers retry instead of
	// failing with SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
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
		`CREATE TABLE IF NOT EXISTS messages (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_key TEXT NOT NULL,
			role             TEXT NOT NULL,
			name             TEXT NOT NULL DEFAULT '',
			content          TEXT NOT NULL,
			turn_id          TEXT NOT NULL DEFAULT '',
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_key, id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)`,
		`CREATE TABLE IF NOT EXISTS turns (
			id               TEXT PRIMARY KEY,
			conversation_key TEXT NOT NULL DEFAULT '',
			channel          TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'running',
			path             TEXT,
			steps            INTEGER NOT NULL DEFAULT 0,
			reply            TEXT NOT NULL DEFAULT '',
			output_image     TEXT NOT NULL DEFAULT '',
			error            TEXT NOT NULL DEFAULT '',
			started_at       INTEGER NOT NULL,
			finished_at      INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_key, started_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}

func (s *Store) seal(text string) (string, error) {
	if s.vault == nil {
		return text, nil
	}
	return s.vault.Seal(text)
}

func (s *Store) open(text string) (string, error) {
	if !vault.IsSealed(text) {
		return text, nil
	}
	if s.vault == nil {
		return "", fmt.Errorf("content is encrypted and no vault passphrase is configured")
	}
	return s.vault.Open(text)
}
