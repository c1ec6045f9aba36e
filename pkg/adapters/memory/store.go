// Package memory provides an in-memory TraceStore, useful for tests and
// single-process hosts.
package memory

import (
	"context"
	"sync"

	"github.com/memgrafter/flatagents/pkg/domain"
	"github.com/memgrafter/flatagents/pkg/ports"
)

// Store keeps traces in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	traces map[string]*domain.Trace
}

var _ ports.TraceStore = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{traces: make(map[string]*domain.Trace)}
}

// Save implements ports.TraceStore.
func (s *Store) Save(_ context.Context, trace *domain.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.traces[trace.RunID] = trace
	return nil
}

// Load implements ports.TraceStore.
func (s *Store) Load(_ context.Context, runID string) (*domain.Trace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trace, ok := s.traces[runID]
	if !ok {
		return nil, ports.ErrTraceNotFound
	}
	return trace, nil
}

// List implements ports.TraceStore.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.traces))
	for id := range s.traces {
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete implements ports.TraceStore.
func (s *Store) Delete(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.traces, runID)
	return nil
}
