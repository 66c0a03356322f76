package archive

import (
	"context"
	"slices"
	"sync"
	"time"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-process [Store].
type MemStore struct {
	mu       sync.Mutex
	sessions map[string][]Turn
	now      func() time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{sessions: make(map[string][]Turn), now: time.Now}
}

// RecordTurn implements [Store].
func (s *MemStore) RecordTurn(_ context.Context, t Turn) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := s.sessions[t.SessionID]
	i, found := slices.BinarySearchFunc(turns, t.Index, func(a Turn, idx int) int { return a.Index - idx })
	if found {
		turns[i] = t
		return nil
	}
	s.sessions[t.SessionID] = slices.Insert(turns, i, t)
	return nil
}

// Turns implements [Store].
func (s *MemStore) Turns(_ context.Context, sessionID string) ([]Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sessions[sessionID]), nil
}

// Ping implements [Store]. It always succeeds.
func (s *MemStore) Ping(context.Context) error { return nil }

// Close implements [Store].
func (s *MemStore) Close() {}
