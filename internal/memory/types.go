package memory

import (
	"context"
	"time"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TurnRecord is one logged message in a conversation. Content is the text as
// the user saw or wrote it, PII-redacted; PivotContent is the same turn in
// the pivot language and is what gets replayed to the advisor as history.
type TurnRecord struct {
	ID           string    `json:"id"`
	Identity     string    `json:"identity"`
	Role         string    `json:"role"`
	Kind         string    `json:"kind"`
	Content      string    `json:"content"`
	PivotContent string    `json:"pivot_content,omitempty"`
	MediaRef     string    `json:"media_ref,omitempty"`
	Language     string    `json:"language,omitempty"`
	PIIRedacted  bool      `json:"pii_redacted"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists and retrieves the interaction log.
type Store interface {
	SaveTurn(ctx context.Context, record TurnRecord) error
	// RecentContext returns up to limit turns for identity, oldest first.
	RecentContext(ctx context.Context, identity string, limit int) ([]TurnRecord, error)
	Close() error
}
