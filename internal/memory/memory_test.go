package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.SaveTurn(ctx, TurnRecord{
			Identity:  "+1555",
			Role:      RoleUser,
			Kind:      "text",
			Content:   fmt.Sprintf("q%d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	require.NoError(t, store.SaveTurn(ctx, TurnRecord{Identity: "+1666", Role: RoleUser, Kind: "text", Content: "other"}))

	got, err := store.RecentContext(ctx, "+1555", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "q2", got[0].Content)
	assert.Equal(t, "q4", got[2].Content)
	assert.NotEmpty(t, got[0].ID)

	none, err := store.RecentContext(ctx, "+1999", 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInMemoryStore(t *testing.T) {
	exerciseStore(t, NewInMemoryStore(0))
}

func TestInMemoryStoreCapsPerIdentity(t *testing.T) {
	s := NewInMemoryStore(2)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.SaveTurn(ctx, TurnRecord{Identity: "a", Content: fmt.Sprint(i)}))
	}
	got, err := s.RecentContext(ctx, "a", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].Content)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseStore(t, s)
}
