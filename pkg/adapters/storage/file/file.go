package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// Store implements ports.WorkflowStore on the filesystem: one JSON document
// per workflow at <dir>/<workflow_id>.json. Writes go through a temp file
// and an atomic rename, so a crash never leaves a half-written document.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

// NewStore creates the workflow directory if needed.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating workflow dir: %v", domain.ErrPersistence, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Create persists a new workflow document after validating its task graph.
func (s *Store) Create(ctx context.Context, wf *domain.Workflow) error {
	if err := wf.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(wf.WorkflowID)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyExists, wf.WorkflowID)
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if err := s.write(path, wf); err != nil {
		return err
	}

	s.logger.Debug("workflow document written",
		zap.String("workflow_id", wf.WorkflowID),
		zap.String("path", path))
	return nil
}

// Get reads a workflow document.
func (s *Store) Get(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	return s.read(s.path(workflowID), workflowID)
}

// Update applies the mutation under the store lock and atomically replaces
// the document. The read-modify-write is the single point of serialization
// for all state transitions.
func (s *Store) Update(ctx context.Context, workflowID string, mutate ports.WorkflowMutation) (*domain.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(workflowID)
	wf, err := s.read(path, workflowID)
	if err != nil {
		return nil, err
	}
	if err := mutate(wf); err != nil {
		return nil, err
	}
	if err := s.write(path, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// List reads every workflow document in the directory and returns summaries
// ordered by workflow id.
func (s *Store) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading workflow dir: %v", domain.ErrPersistence, err)
	}

	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}

	summaries := make([]domain.WorkflowSummary, len(ids))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			wf, err := s.read(s.path(id), id)
			if err != nil {
				return err
			}
			summaries[i] = wf.Summary()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].WorkflowID < summaries[j].WorkflowID
	})
	return summaries, nil
}

// Delete removes a workflow document.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(workflowID))
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, workflowID)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *Store) path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}

func (s *Store) read(path, workflowID string) (*domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, workflowID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %v", domain.ErrPersistence, path, err)
	}
	return &wf, nil
}

func (s *Store) write(path string, wf *domain.Workflow) error {
	data, err := json.MarshalIndent(wf, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding workflow: %v", domain.ErrPersistence, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".workflow-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}
