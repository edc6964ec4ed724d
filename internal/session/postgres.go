package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initPostgresSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initPostgresSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_sessions (
			identity TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			preferred_language TEXT,
			display_name TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_active_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_user_sessions_last_active ON user_sessions (last_active_at);`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, identity string) (*Session, error) {
	var (
		s          Session
		state      string
		lang, name *string
	)
	err := p.pool.QueryRow(ctx,
		`SELECT identity, state, preferred_language, display_name, created_at, last_active_at
		 FROM user_sessions WHERE identity=$1`,
		identity,
	).Scan(&s.Identity, &state, &lang, &name, &s.CreatedAt, &s.LastActiveAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.State = State(state)
	if lang != nil {
		s.PreferredLanguage = *lang
	}
	if name != nil {
		s.DisplayName = *name
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.LastActiveAt = s.LastActiveAt.UTC()
	return &s, nil
}

func (p *PostgresStore) Upsert(ctx context.Context, s *Session) error {
	if err := s.Validate(); err != nil {
		return err
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO user_sessions (identity, state, preferred_language, display_name, created_at, last_active_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)
		 ON CONFLICT (identity) DO UPDATE SET
			state = EXCLUDED.state,
			preferred_language = EXCLUDED.preferred_language,
			display_name = EXCLUDED.display_name,
			last_active_at = EXCLUDED.last_active_at`,
		s.Identity,
		string(s.State),
		s.PreferredLanguage,
		s.DisplayName,
		s.CreatedAt,
		s.LastActiveAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (p *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM user_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
