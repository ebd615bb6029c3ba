// Package redis implements a workflow store backed by Redis.
//
// Each workflow is stored as a single JSON document under
// "taskmesh:workflow:<workflow_id>". Updates are serialized through a
// process-local mutex, matching the single-writer model of the other
// store backends.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

const keyPrefix = "taskmesh:workflow:"

// Store implements ports.WorkflowStore on top of a Redis client.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger

	mu sync.Mutex
}

// NewStore creates a Redis-backed workflow store. A zero ttl keeps
// workflow documents forever.
func NewStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

var _ ports.WorkflowStore = (*Store)(nil)

func workflowKey(id string) string {
	return keyPrefix + id
}

// Create persists a new workflow. SetNX makes the existence check and
// the write a single atomic operation.
func (s *Store) Create(ctx context.Context, wf *domain.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("%w: marshal workflow %s: %w", domain.ErrPersistence, wf.WorkflowID, err)
	}

	ok, err := s.client.SetNX(ctx, workflowKey(wf.WorkflowID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: create workflow %s: %w", domain.ErrPersistence, wf.WorkflowID, err)
	}
	if !ok {
		return fmt.Errorf("%w: workflow %s", domain.ErrAlreadyExists, wf.WorkflowID)
	}

	s.logger.Debug("workflow stored", zap.String("workflow_id", wf.WorkflowID))
	return nil
}

// Get loads a workflow by id.
func (s *Store) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	data, err := s.client.Get(ctx, workflowKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("%w: get workflow %s: %w", domain.ErrPersistence, id, err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: unmarshal workflow %s: %w", domain.ErrPersistence, id, err)
	}
	return &wf, nil
}

// Update applies mutate to the stored workflow under the store mutex
// and writes the result back. The mutation is discarded on error.
func (s *Store) Update(ctx context.Context, id string, mutate ports.WorkflowMutation) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wf, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := mutate(wf); err != nil {
		return nil, err
	}

	data, err := json.Marshal(wf)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal workflow %s: %w", domain.ErrPersistence, id, err)
	}
	if err := s.client.Set(ctx, workflowKey(id), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: update workflow %s: %w", domain.ErrPersistence, id, err)
	}

	return wf, nil
}

// List returns summaries for all stored workflows, sorted by id.
func (s *Store) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	var summaries []domain.WorkflowSummary

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between scan and get
			}
			return nil, fmt.Errorf("%w: list workflows: %w", domain.ErrPersistence, err)
		}

		var wf domain.Workflow
		if err := json.Unmarshal(data, &wf); err != nil {
			s.logger.Warn("skipping undecodable workflow document", zap.String("key", iter.Val()), zap.Error(err))
			continue
		}
		summaries = append(summaries, wf.Summary())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("%w: scan workflows: %w", domain.ErrPersistence, err)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].WorkflowID < summaries[j].WorkflowID
	})
	return summaries, nil
}

// Delete removes a workflow document.
func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, workflowKey(id)).Result()
	if err != nil {
		return fmt.Errorf("%w: delete workflow %s: %w", domain.ErrPersistence, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: workflow %s", domain.ErrNotFound, id)
	}
	return nil
}
