// Package store persists the macro library and engine settings in sqlite.
// Macros are stored as ordered JSON payloads; settings are a flat key/value
// table where a missing key is not an error.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"macrokit/internal/model"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// ReplaceLibrary overwrites the persisted macro list with the snapshot,
// preserving its order.
func (s *Store) ReplaceLibrary(ctx context.Context, macros []model.MacroSequence) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace library: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM macros`); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear macros: %w", err)
	}
	for i, m := range macros {
		payload, err := json.Marshal(m)
		if err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("marshal macro %s: %w", m.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO macros(macro_id, name, position, payload, updated_at)
VALUES (?, ?, ?, ?, datetime('now'))
`, m.ID, m.Name, i, string(payload)); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert macro %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace library: %w", err)
	}
	return nil
}

// LoadLibrary returns the persisted macro list in saved order. Rows whose
// payload no longer parses are skipped, not fatal.
func (s *Store) LoadLibrary(ctx context.Context) ([]model.MacroSequence, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM macros ORDER BY position ASC`)
	if err != nil {
		return nil, fmt.Errorf("query macros: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.MacroSequence
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan macro: %w", err)
		}
		var m model.MacroSequence
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate macros: %w", err)
	}
	return out, nil
}

// PutSetting upserts one settings key.
func (s *Store) PutSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO settings(key, value, updated_at) VALUES (?, ?, datetime('now'))
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at
`, key, value)
	if err != nil {
		return fmt.Errorf("put setting %s: %w", key, err)
	}
	return nil
}

// GetSetting reads one settings key. A missing key returns ok=false with a
// nil error.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, true, nil
}
