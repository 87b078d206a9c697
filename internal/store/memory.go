package store

import (
	"context"
	"sort"
	"sync"
)

type memoryKey struct{ userID, fileID string }

type MemoryStore struct {
	mu      sync.RWMutex
	records map[memoryKey]Context
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[memoryKey]Context{}}
}

func (s *MemoryStore) CreateContext(ctx context.Context, rec Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := memoryKey{rec.UserID, rec.FileID}
	if _, ok := s.records[k]; ok {
		return ErrContextExists
	}
	s.records[k] = rec
	return nil
}

func (s *MemoryStore) GetContext(ctx context.Context, fileID, userID string) (Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[memoryKey{userID, fileID}]
	if !ok {
		return Context{}, ErrContextNotFound
	}
	return rec, nil
}

func (s *MemoryStore) SaveContext(ctx context.Context, rec Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[memoryKey{rec.UserID, rec.FileID}] = rec
	return nil
}

func (s *MemoryStore) ListContexts(ctx context.Context, userID string) ([]Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Context
	for k, rec := range s.records {
		if userID == "" || k.userID == userID {
			out = append(out, rec)
		}
	}
	sortContexts(out)
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func sortContexts(recs []Context) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].UserID != recs[j].UserID {
			return recs[i].UserID < recs[j].UserID
		}
		return recs[i].FileID < recs[j].FileID
	})
}
