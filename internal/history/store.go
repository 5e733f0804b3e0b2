// Package history keeps a SQLite log of sharing attempts.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fractalmind-ai/translatebot/internal/dispatch"
)

// Record is one confirmed share and what each platform made of it.
type Record struct {
	ID             string
	ConversationID string
	OriginalText   string
	TranslatedText string
	Results        []dispatch.Result
	Succeeded      bool
	CreatedAt      time.Time
}

// RecordFromOutcome builds a Record from a dispatch outcome.
func RecordFromOutcome(conversationID, original, translated string, outcome dispatch.Outcome, at time.Time) Record {
	return Record{
		ID:             outcome.ID,
		ConversationID: conversationID,
		OriginalText:   original,
		TranslatedText: translated,
		Results:        outcome.Ordered(),
		Succeeded:      outcome.Succeeded(),
		CreatedAt:      at,
	}
}

// Store persists share records in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens or creates a store at path. "~" expands to the home directory
// and missing parent directories are created.
func Open(path string) (*Store, error) {
	resolved, err := expandUser(path)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(resolved); dir != "." && resolved != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// RecordShare stores rec. Records with an existing id are replaced.
func (s *Store) RecordShare(ctx context.Context, rec Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("store is nil")
	}
	if rec.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	results, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO shares(id,conversation_id,original_text,translated_text,results,succeeded,created_at) VALUES(?,?,?,?,?,?,?)`,
		rec.ID, rec.ConversationID, rec.OriginalText, rec.TranslatedText, string(results), rec.Succeeded, rec.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert share: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id,conversation_id,original_text,translated_text,results,succeeded,created_at FROM shares ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query shares: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var results string
		var created int64
		if err := rows.Scan(&rec.ID, &rec.ConversationID, &rec.OriginalText, &rec.TranslatedText, &results, &rec.Succeeded, &created); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		if err := json.Unmarshal([]byte(results), &rec.Results); err != nil {
			return nil, fmt.Errorf("failed to decode results for %s: %w", rec.ID, err)
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read shares: %w", err)
	}
	return out, nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store is nil")
	}
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM shares").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count shares: %w", err)
	}
	return n, nil
}

func initSchema(db *sql.DB) error {
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS shares (
	id TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	original_text TEXT NOT NULL,
	translated_text TEXT NOT NULL,
	results TEXT NOT NULL,
	succeeded INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shares_created ON shares(created_at);
CREATE INDEX IF NOT EXISTS idx_shares_conversation ON shares(conversation_id);
`); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

func expandUser(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("history path is empty")
	}
	if trimmed[0] != '~' {
		return trimmed, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home dir: %w", err)
	}
	if trimmed == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed[1:], "/")), nil
}
