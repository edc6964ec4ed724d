package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in a local SQLite file. Timestamps are stored
// as unix milliseconds.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	_, err = db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS user_sessions (
		identity TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		preferred_language TEXT,
		display_name TEXT,
		created_at INTEGER NOT NULL,
		last_active_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_user_sessions_last_active ON user_sessions(last_active_at);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// OpenSQLite opens path in WAL mode with a busy timeout so concurrent
// identities do not trip over SQLITE_BUSY.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_journal=WAL&_sync=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)
	return db, nil
}

func (s *SQLiteStore) Get(ctx context.Context, identity string) (*Session, error) {
	var (
		out                 Session
		state               string
		lang, name          sql.NullString
		createdAt, activeAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT identity, state, preferred_language, display_name, created_at, last_active_at
		 FROM user_sessions WHERE identity = ?`, identity,
	).Scan(&out.Identity, &state, &lang, &name, &createdAt, &activeAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	out.State = State(state)
	out.PreferredLanguage = lang.String
	out.DisplayName = name.String
	out.CreatedAt = time.UnixMilli(createdAt).UTC()
	out.LastActiveAt = time.UnixMilli(activeAt).UTC()
	return &out, nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, sess *Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO user_sessions (identity, state, preferred_language, display_name, created_at, last_active_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(identity) DO UPDATE SET
		state = excluded.state,
		preferred_language = excluded.preferred_language,
		display_name = excluded.display_name,
		last_active_at = excluded.last_active_at`,
		sess.Identity,
		string(sess.State),
		nullable(sess.PreferredLanguage),
		nullable(sess.DisplayName),
		sess.CreatedAt.UnixMilli(),
		sess.LastActiveAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM user_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
