package memory

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore keeps the interaction log in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	_, err = db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		identity TEXT NOT NULL,
		role TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL,
		pivot_content TEXT NOT NULL DEFAULT '',
		media_ref TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT '',
		pii_redacted INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_identity_created ON interactions(identity, created_at);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveTurn(ctx context.Context, record TurnRecord) error {
	fill(&record)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, identity, role, kind, content, pivot_content, media_ref, language, pii_redacted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.Identity, record.Role, record.Kind, record.Content,
		record.PivotContent, record.MediaRef, record.Language, record.PIIRedacted,
		record.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save turn: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecentContext(ctx context.Context, identity string, limit int) ([]TurnRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, identity, role, kind, content, pivot_content, media_ref, language, pii_redacted, created_at
		 FROM interactions WHERE identity = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		identity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent context: %w", err)
	}
	defer rows.Close()

	items := make([]TurnRecord, 0, limit)
	for rows.Next() {
		var (
			r       TurnRecord
			created int64
		)
		if err := rows.Scan(&r.ID, &r.Identity, &r.Role, &r.Kind, &r.Content, &r.PivotContent, &r.MediaRef, &r.Language, &r.PIIRedacted, &created); err != nil {
			return nil, fmt.Errorf("scan context row: %w", err)
		}
		r.CreatedAt = time.Unix(0, created).UTC()
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate context rows: %w", err)
	}
	reverse(items)
	return items, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
