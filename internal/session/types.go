package session

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the onboarding position of one identity.
type State string

const (
	StateNew              State = "NEW"
	StateAwaitingLanguage State = "AWAITING_LANGUAGE"
	StateAwaitingName     State = "AWAITING_NAME"
	StateRegistered       State = "REGISTERED"
)

func (s State) Valid() bool {
	switch s {
	case StateNew, StateAwaitingLanguage, StateAwaitingName, StateRegistered:
		return true
	}
	return false
}

var (
	ErrNotFound       = errors.New("session not found")
	ErrInvalidSession = errors.New("invalid session")
)

// Session is the durable per-identity record. Empty PreferredLanguage and
// DisplayName mean "not set yet".
type Session struct {
	Identity          string    `json:"identity"`
	State             State     `json:"state"`
	PreferredLanguage string    `json:"preferred_language,omitempty"`
	DisplayName       string    `json:"display_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	LastActiveAt      time.Time `json:"last_active_at"`
}

// New returns a fresh session for an identity that has never been seen.
func New(identity string, now time.Time) *Session {
	now = now.UTC()
	return &Session{
		Identity:     identity,
		State:        StateNew,
		CreatedAt:    now,
		LastActiveAt: now,
	}
}

// Validate checks the record before it is written: a session is REGISTERED
// exactly when both language and name are known.
func (s *Session) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidSession)
	}
	if s.Identity == "" {
		return fmt.Errorf("%w: empty identity", ErrInvalidSession)
	}
	if !s.State.Valid() {
		return fmt.Errorf("%w: unknown state %q", ErrInvalidSession, s.State)
	}
	complete := s.PreferredLanguage != "" && s.DisplayName != ""
	if complete != (s.State == StateRegistered) {
		return fmt.Errorf("%w: state %s with language=%q name=%q", ErrInvalidSession, s.State, s.PreferredLanguage, s.DisplayName)
	}
	return nil
}

func clone(s *Session) *Session {
	c := *s
	return &c
}

// Store persists sessions keyed by identity. Get returns ErrNotFound for an
// unseen identity. Callers serialize access per identity with a Locker;
// stores only guarantee that each call is atomic.
type Store interface {
	Get(ctx context.Context, identity string) (*Session, error)
	Upsert(ctx context.Context, s *Session) error
	Count(ctx context.Context) (int, error)
	Close() error
}
