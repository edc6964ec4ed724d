package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process interaction log for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]TurnRecord
	maxPer  int
}

// NewInMemoryStore keeps at most maxPerIdentity turns per identity; zero
// means unbounded.
func NewInMemoryStore(maxPerIdentity int) *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]TurnRecord), maxPer: maxPerIdentity}
}

func (s *InMemoryStore) SaveTurn(_ context.Context, record TurnRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fill(&record)
	arr := append(s.records[record.Identity], record)
	if s.maxPer > 0 && len(arr) > s.maxPer {
		arr = append([]TurnRecord(nil), arr[len(arr)-s.maxPer:]...)
	}
	s.records[record.Identity] = arr
	return nil
}

func (s *InMemoryStore) RecentContext(_ context.Context, identity string, limit int) ([]TurnRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[identity]
	if len(arr) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(arr) {
		limit = len(arr)
	}
	out := make([]TurnRecord, 0, limit)
	for i := len(arr) - limit; i < len(arr); i++ {
		out = append(out, arr[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }

func fill(r *TurnRecord) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
}
