package checkpoint

import (
	"context"
	"sync"

	"github.com/flowgraph/flowgraph/runid"
)

// MemoryStore is an in-process Store backed by a mutex-guarded map. It is
// the default for tests and single-process deployments, grounded in the
// teacher's MemStore.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Checkpoint
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Save(_ context.Context, cp Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cp.ID == "" {
		cp.ID = runid.New()
	}
	s.byID[cp.ID] = cp
	return cp.ID, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.byID[id]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
	return nil
}

func (s *MemoryStore) ListByRun(_ context.Context, runID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Checkpoint
	for _, cp := range s.byID {
		if cp.RunID == runID {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteByRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, cp := range s.byID {
		if cp.RunID == runID {
			delete(s.byID, id)
		}
	}
	return nil
}
