package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/application/resolver"
	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/executors"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// Event bus topics the scheduler publishes on.
const (
	TopicWorkflowEvents = "workflow.events"
	TopicTaskEvents     = "task.events"
)

// Scheduler drives one workflow at a time from created to a terminal status.
// All task and workflow state transitions go through the store's Update
// operation; the loop itself blocks only while waiting for at least one
// dispatched task to finish.
type Scheduler struct {
	store    ports.WorkflowStore
	registry *executors.Registry
	bus      ports.EventBus
	metrics  ports.MetricsCollector
	logger   *zap.Logger

	workflowTimeout time.Duration
	active          atomic.Int64
}

// New creates a scheduler. workflowTimeout bounds a whole Run; zero means
// no bound.
func New(
	store ports.WorkflowStore,
	registry *executors.Registry,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	workflowTimeout time.Duration,
) *Scheduler {
	return &Scheduler{
		store:           store,
		registry:        registry,
		bus:             bus,
		metrics:         metrics,
		logger:          logger,
		workflowTimeout: workflowTimeout,
	}
}

// taskResult is the join point between a dispatched task and the loop.
type taskResult struct {
	taskID   string
	result   *domain.Result
	duration time.Duration
}

// Run executes the workflow to a terminal status and returns the final
// snapshot. Task failures never abort the loop; only persistence errors do.
func (s *Scheduler) Run(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	if s.workflowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.workflowTimeout)
		defer cancel()
	}

	s.metrics.SetActiveWorkflows(int(s.active.Add(1)))
	defer func() {
		s.metrics.SetActiveWorkflows(int(s.active.Add(-1)))
	}()

	startedAt := time.Now()

	wf, err := s.store.Update(ctx, workflowID, func(w *domain.Workflow) error {
		if w.Status != domain.WorkflowStatusCreated {
			return fmt.Errorf("workflow %s is %s, cannot start", w.WorkflowID, w.Status)
		}
		w.Status = domain.WorkflowStatusRunning
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("workflow started",
		zap.String("workflow_id", workflowID),
		zap.Int("tasks", len(wf.Tasks)),
		zap.Bool("parallel", wf.ParallelExecution))
	s.publish(ctx, TopicWorkflowEvents, domain.EventTypeWorkflowStarted, workflowID, "", nil)

	// The critical path is static: the graph never changes after creation.
	critical := resolver.CriticalPath(wf.Tasks)

	results := make(chan taskResult)
	inflight := 0
	halted := false

	for {
		var dispatch []*domain.Task
		var skipped []string

		wf, err = s.store.Update(ctx, workflowID, func(w *domain.Workflow) error {
			skipped = resolver.PropagateSkips(w.Tasks)
			if halted {
				return nil
			}

			eligible := resolver.Ready(w.Tasks)
			for _, t := range eligible {
				t.Status = domain.TaskStatusReady
			}

			var selected []*domain.Task
			switch {
			case w.ParallelExecution:
				selected = eligible
			case inflight == 0 && len(eligible) > 0:
				// Sequential mode: exactly one task runs at a time,
				// highest priority then plan order.
				selected = eligible[:1]
			}

			for _, t := range selected {
				t.Status = domain.TaskStatusRunning
				dispatch = append(dispatch, t.Clone())
			}
			return nil
		})
		if err != nil {
			s.drain(results, inflight)
			return nil, err
		}

		for _, id := range skipped {
			s.logger.Info("task skipped",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", id))
			s.publish(ctx, TopicTaskEvents, domain.EventTypeTaskSkipped, workflowID, id, nil)
		}

		for _, t := range dispatch {
			deps := dependencyResults(wf, t)
			s.logger.Info("task dispatched",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", t.TaskID),
				zap.String("agent_type", string(t.AgentType)))
			s.publish(ctx, TopicTaskEvents, domain.EventTypeTaskStarted, workflowID, t.TaskID, nil)

			inflight++
			go func(task *domain.Task, deps map[string]*domain.Result) {
				start := time.Now()
				res := s.registry.Dispatch(ctx, task, deps)
				results <- taskResult{taskID: task.TaskID, result: res, duration: time.Since(start)}
			}(t, deps)
		}

		if inflight == 0 {
			break
		}

		// Wait for one completion, record it, and re-resolve. Recording is
		// always the last step of a task's execution.
		res := <-results
		inflight--

		var agentType domain.AgentType
		wf, err = s.store.Update(ctx, workflowID, func(w *domain.Workflow) error {
			t := w.Task(res.taskID)
			if t == nil {
				return fmt.Errorf("task %s not found in workflow %s", res.taskID, w.WorkflowID)
			}
			agentType = t.AgentType
			t.Result = res.result
			if res.result.OK {
				t.Status = domain.TaskStatusCompleted
			} else {
				t.Status = domain.TaskStatusFailed
				if critical[t.TaskID] {
					// The final output is unreachable; the workflow is
					// failed even while sibling branches drain.
					w.Status = domain.WorkflowStatusFailed
				}
			}
			return nil
		})
		if err != nil {
			s.drain(results, inflight)
			return nil, err
		}

		if res.result.OK {
			s.metrics.RecordTaskExecuted(string(agentType), string(domain.TaskStatusCompleted), res.duration)
			s.logger.Info("task completed",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", res.taskID),
				zap.Duration("duration", res.duration))
			s.publish(ctx, TopicTaskEvents, domain.EventTypeTaskCompleted, workflowID, res.taskID, map[string]interface{}{
				"output": res.result.Output,
			})
		} else {
			s.metrics.RecordTaskExecuted(string(agentType), string(domain.TaskStatusFailed), res.duration)
			s.logger.Warn("task failed",
				zap.String("workflow_id", workflowID),
				zap.String("task_id", res.taskID),
				zap.String("error", res.result.Error),
				zap.Duration("duration", res.duration))
			s.publish(ctx, TopicTaskEvents, domain.EventTypeTaskFailed, workflowID, res.taskID, map[string]interface{}{
				"error": res.result.Error,
			})
			if critical[res.taskID] {
				halted = true
			}
		}
	}

	wf, err = s.store.Update(ctx, workflowID, func(w *domain.Workflow) error {
		resolver.PropagateSkips(w.Tasks)
		w.Status = domain.WorkflowStatusCompleted
		for _, t := range w.Tasks {
			if t.Status != domain.TaskStatusCompleted {
				w.Status = domain.WorkflowStatusFailed
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	elapsed := time.Since(startedAt)
	s.metrics.RecordWorkflowCompleted(string(wf.Status), elapsed)
	s.logger.Info("workflow finished",
		zap.String("workflow_id", workflowID),
		zap.String("status", string(wf.Status)),
		zap.Duration("duration", elapsed))

	eventType := domain.EventTypeWorkflowCompleted
	if wf.Status == domain.WorkflowStatusFailed {
		eventType = domain.EventTypeWorkflowFailed
	}
	s.publish(ctx, TopicWorkflowEvents, eventType, workflowID, "", nil)

	return wf, nil
}

// dependencyResults collects the results of a task's dependencies from the
// workflow snapshot. All dependencies are completed by the time the task is
// dispatched.
func dependencyResults(wf *domain.Workflow, task *domain.Task) map[string]*domain.Result {
	if len(task.Dependencies) == 0 {
		return nil
	}
	deps := make(map[string]*domain.Result, len(task.Dependencies))
	for _, depID := range task.Dependencies {
		if dep := wf.Task(depID); dep != nil && dep.Result != nil {
			deps[depID] = dep.Result
		}
	}
	return deps
}

// drain receives outstanding task results so dispatched goroutines can exit
// after the loop aborts on a persistence error.
func (s *Scheduler) drain(results chan taskResult, inflight int) {
	for i := 0; i < inflight; i++ {
		<-results
	}
}

func (s *Scheduler) publish(ctx context.Context, topic string, eventType domain.EventType, workflowID, taskID string, data map[string]interface{}) {
	event := domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		WorkflowID: workflowID,
		TaskID:     taskID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}
	if err := s.bus.Publish(ctx, topic, event); err != nil {
		s.logger.Error("failed to publish event",
			zap.String("workflow_id", workflowID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}
