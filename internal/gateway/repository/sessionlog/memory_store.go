package sessionlog

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	max     int
}

// NewMemoryStore keeps at most max entries, dropping the oldest.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 10000
	}
	return &MemoryStore{max: max}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	e.SessionID = strings.TrimSpace(e.SessionID)
	if e.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	if over := len(s.entries) - s.max; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	sessionID = strings.TrimSpace(sessionID)
	limit = normalizeLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if sessionID != "" && s.entries[i].SessionID != sessionID {
			continue
		}
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
