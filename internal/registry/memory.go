package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and the CLI. Pipelines are
// deep-copied on the way in and out so callers never share mutable state
// with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	pipelines map[uuid.UUID]*Pipeline
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{pipelines: make(map[uuid.UUID]*Pipeline)}
}

func (s *MemoryStore) GetPipeline(_ context.Context, id uuid.UUID) (*Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return nil, fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	return copyPipeline(p), nil
}

func (s *MemoryStore) ListPipelines(_ context.Context) ([]Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Pipeline, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		out = append(out, *copyPipeline(p))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) SavePipeline(_ context.Context, p *Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pipelines[p.ID] = copyPipeline(p)
	return nil
}

func (s *MemoryStore) DeletePipeline(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pipelines[id]; !ok {
		return fmt.Errorf("pipeline %s: %w", id, ErrNotFound)
	}
	delete(s.pipelines, id)
	return nil
}

func copyPipeline(p *Pipeline) *Pipeline {
	cp := *p
	cp.Mappings = append(cp.Mappings[:0:0], p.Mappings...)
	cp.Queues = append(cp.Queues[:0:0], p.Queues...)
	cp.Rules = append(cp.Rules[:0:0], p.Rules...)
	for i := range cp.Rules {
		conds := cp.Rules[i].Group.Conditions
		cp.Rules[i].Group.Conditions = append(conds[:0:0], conds...)
	}
	return &cp
}
