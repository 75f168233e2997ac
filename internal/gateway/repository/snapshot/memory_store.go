package snapshot

import (
	"context"
	"sort"
	"sync"
)

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, sessionID string, data []byte) error {
	key, err := objectKey(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) ([]byte, error) {
	key, err := objectKey(sessionID)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryStore) GetURL(context.Context, string) (string, error) {
	return "", nil
}

func (s *MemoryStore) List(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for key := range s.data {
		out = append(out, sessionOf(key))
	}
	sort.Strings(out)
	return out, nil
}
