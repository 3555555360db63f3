package store

import (
	"context"
	"sync"

	"github.com/kilianp07/platoonsim/core/model"
)

// MemoryStore keeps summaries in memory, in save order.
type MemoryStore struct {
	mu    sync.Mutex
	order []string
	data  map[string]model.Summary
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]model.Summary{}}
}

// SaveSummary inserts or replaces the summary of a run.
func (s *MemoryStore) SaveSummary(_ context.Context, sum model.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sum.RunID
	if key == "" {
		key = sum.Scenario.Name()
	}
	if _, ok := s.data[key]; !ok {
		s.order = append(s.order, key)
	}
	sum.Values = finite(sum.Values)
	s.data[key] = sum
	return nil
}

// Summaries returns the stored summaries matching f.
func (s *MemoryStore) Summaries(_ context.Context, f Filter) ([]model.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.Summary
	for _, k := range s.order {
		if sum := s.data[k]; f.match(sum) {
			res = append(res, sum)
		}
	}
	return res, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
