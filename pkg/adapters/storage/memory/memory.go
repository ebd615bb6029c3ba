package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// Store implements ports.WorkflowStore with an in-process map. Snapshots are
// deep-copied on the way in and out, so callers never share mutable state
// with the store.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
}

// NewStore creates an empty in-memory workflow store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*domain.Workflow),
	}
}

// Create persists a new workflow after validating its task graph.
func (s *Store) Create(ctx context.Context, wf *domain.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workflows[wf.WorkflowID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, wf.WorkflowID)
	}
	s.workflows[wf.WorkflowID] = wf.Clone()
	return nil
}

// Get returns a snapshot of the workflow.
func (s *Store) Get(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, workflowID)
	}
	return wf.Clone(), nil
}

// Update applies the mutation under the store lock. Concurrent updates
// serialize here; a mutation error leaves the stored workflow untouched.
func (s *Store) Update(ctx context.Context, workflowID string, mutate ports.WorkflowMutation) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, ok := s.workflows[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, workflowID)
	}

	updated := wf.Clone()
	if err := mutate(updated); err != nil {
		return nil, err
	}
	s.workflows[workflowID] = updated
	return updated.Clone(), nil
}

// List returns summaries for all workflows, ordered by workflow id.
func (s *Store) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]domain.WorkflowSummary, 0, len(s.workflows))
	for _, wf := range s.workflows {
		summaries = append(summaries, wf.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].WorkflowID < summaries[j].WorkflowID
	})
	return summaries, nil
}

// Delete removes a workflow.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[workflowID]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, workflowID)
	}
	delete(s.workflows, workflowID)
	return nil
}
