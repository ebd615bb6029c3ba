package executors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// Registry maps agent types to executors and dispatches tasks to them.
// Dispatch is stateless and safe for concurrent use; the registry holds no
// cross-task state.
type Registry struct {
	mu        sync.RWMutex
	executors map[domain.AgentType]ports.Executor

	taskTimeout time.Duration
	logger      *zap.Logger
}

// NewRegistry creates an empty registry. Every dispatched invocation is
// bounded by taskTimeout.
func NewRegistry(taskTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		executors:   make(map[domain.AgentType]ports.Executor),
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// Register adds an executor for its declared kind. Registering two executors
// for the same kind is a wiring mistake and is rejected.
func (r *Registry) Register(e ports.Executor) error {
	kind := e.Kind()
	if !kind.Valid() {
		return fmt.Errorf("unknown agent type %q", kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[kind]; exists {
		return fmt.Errorf("executor already registered for agent type %q", kind)
	}
	r.executors[kind] = e
	return nil
}

// Get returns the executor for an agent type, if registered.
func (r *Registry) Get(kind domain.AgentType) (ports.Executor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[kind]
	return e, ok
}

// Dispatch runs the task on the executor registered for its agent type,
// bounded by the per-task timeout. It always returns a result: executor
// errors and timeouts are folded into a failed result rather than escaping,
// so the caller's store update is always the last step.
func (r *Registry) Dispatch(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) *domain.Result {
	exec, ok := r.Get(task.AgentType)
	if !ok {
		return &domain.Result{
			OK:    false,
			Error: fmt.Sprintf("%v: no executor registered for agent type %q", domain.ErrExecution, task.AgentType),
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, r.taskTimeout)
	defer cancel()

	start := time.Now()
	result, err := exec.Execute(execCtx, task, deps)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			r.logger.Warn("task timed out",
				zap.String("task_id", task.TaskID),
				zap.String("agent_type", string(task.AgentType)),
				zap.Duration("timeout", r.taskTimeout))
			return &domain.Result{
				OK:    false,
				Error: fmt.Sprintf("%v after %s", domain.ErrTimeout, r.taskTimeout),
			}
		}
		r.logger.Error("task execution failed",
			zap.String("task_id", task.TaskID),
			zap.String("agent_type", string(task.AgentType)),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return &domain.Result{
			OK:    false,
			Error: fmt.Sprintf("%v: %v", domain.ErrExecution, err),
		}
	}

	if result == nil {
		return &domain.Result{
			OK:    false,
			Error: fmt.Sprintf("%v: executor returned no result", domain.ErrExecution),
		}
	}

	r.logger.Debug("task executed",
		zap.String("task_id", task.TaskID),
		zap.String("agent_type", string(task.AgentType)),
		zap.Bool("ok", result.OK),
		zap.Duration("duration", elapsed))

	return result
}
