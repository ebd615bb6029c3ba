package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/internal/application/resolver"
	"github.com/taskmesh/taskmesh/internal/application/scheduler"
	"github.com/taskmesh/taskmesh/internal/domain"
	"github.com/taskmesh/taskmesh/internal/ports"
)

// Orchestrator is the facade over planning, storage and scheduling. API
// surfaces call it instead of touching the lower layers directly.
type Orchestrator struct {
	planner   ports.Planner
	store     ports.WorkflowStore
	scheduler *scheduler.Scheduler
	bus       ports.EventBus
	metrics   ports.MetricsCollector
	logger    *zap.Logger

	parallelByDefault bool
}

// New creates an orchestrator.
func New(
	planner ports.Planner,
	store ports.WorkflowStore,
	sched *scheduler.Scheduler,
	bus ports.EventBus,
	metrics ports.MetricsCollector,
	logger *zap.Logger,
	parallelByDefault bool,
) *Orchestrator {
	return &Orchestrator{
		planner:           planner,
		store:             store,
		scheduler:         sched,
		bus:               bus,
		metrics:           metrics,
		logger:            logger,
		parallelByDefault: parallelByDefault,
	}
}

// RunResult is the aggregated outcome of a full workflow run.
type RunResult struct {
	WorkflowID string                 `json:"workflow_id"`
	Status     domain.WorkflowStatus  `json:"status"`
	Output     interface{}            `json:"output,omitempty"`
	Error      string                 `json:"error,omitempty"`
	FailedTask string                 `json:"failed_task,omitempty"`
	Summary    domain.WorkflowSummary `json:"summary"`
}

// Run plans a workflow for the request, persists it, executes it to a
// terminal status and aggregates the outcome.
func (o *Orchestrator) Run(ctx context.Context, request string) (*RunResult, error) {
	specs, err := o.planner.Plan(ctx, request)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty plan for request", domain.ErrPlanning)
	}

	wf, err := o.createWorkflow(ctx, "", specs, o.parallelByDefault)
	if err != nil {
		if isGraphError(err) {
			// The planner produced an unusable graph; surface it as a
			// planning failure.
			return nil, fmt.Errorf("%w: %w", domain.ErrPlanning, err)
		}
		return nil, err
	}

	final, err := o.scheduler.Run(ctx, wf.WorkflowID)
	if err != nil {
		return nil, err
	}

	return aggregate(final), nil
}

// CreateWorkflow persists a pre-planned workflow without executing it.
// Callers may supply their own workflowID; an empty id gets a generated
// one. A taken id fails with domain.ErrAlreadyExists.
func (o *Orchestrator) CreateWorkflow(ctx context.Context, workflowID string, specs []domain.TaskSpec, parallel bool) (*domain.Workflow, error) {
	return o.createWorkflow(ctx, workflowID, specs, parallel)
}

// StartWorkflow executes a previously created workflow to a terminal
// status and returns the aggregated outcome.
func (o *Orchestrator) StartWorkflow(ctx context.Context, workflowID string) (*RunResult, error) {
	final, err := o.scheduler.Run(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return aggregate(final), nil
}

// Status returns the current workflow snapshot.
func (o *Orchestrator) Status(ctx context.Context, workflowID string) (*domain.Workflow, error) {
	return o.store.Get(ctx, workflowID)
}

// Result returns the aggregated outcome of a workflow. It fails unless
// the workflow has reached a terminal status.
func (o *Orchestrator) Result(ctx context.Context, workflowID string) (*RunResult, error) {
	wf, err := o.store.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if !wf.Status.Terminal() {
		return nil, fmt.Errorf("workflow %s is still %s", workflowID, wf.Status)
	}
	return aggregate(wf), nil
}

// List returns summaries of all known workflows.
func (o *Orchestrator) List(ctx context.Context) ([]domain.WorkflowSummary, error) {
	return o.store.List(ctx)
}

// Delete removes a workflow and its task records.
func (o *Orchestrator) Delete(ctx context.Context, workflowID string) error {
	if err := o.store.Delete(ctx, workflowID); err != nil {
		return err
	}
	o.logger.Info("workflow deleted", zap.String("workflow_id", workflowID))
	return nil
}

func (o *Orchestrator) createWorkflow(ctx context.Context, workflowID string, specs []domain.TaskSpec, parallel bool) (*domain.Workflow, error) {
	if workflowID == "" {
		workflowID = uuid.New().String()
	}
	wf := domain.NewWorkflow(workflowID, specs, parallel)

	if err := o.store.Create(ctx, wf); err != nil {
		o.metrics.RecordWorkflowCreated("error")
		return nil, err
	}
	o.metrics.RecordWorkflowCreated("created")

	o.logger.Info("workflow created",
		zap.String("workflow_id", wf.WorkflowID),
		zap.Int("tasks", len(wf.Tasks)),
		zap.Bool("parallel", wf.ParallelExecution))
	o.publish(ctx, domain.EventTypeWorkflowCreated, wf.WorkflowID)

	return wf, nil
}

func (o *Orchestrator) publish(ctx context.Context, eventType domain.EventType, workflowID string) {
	event := domain.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		WorkflowID: workflowID,
		Timestamp:  time.Now().UTC(),
	}
	if err := o.bus.Publish(ctx, scheduler.TopicWorkflowEvents, event); err != nil {
		o.logger.Error("failed to publish event",
			zap.String("workflow_id", workflowID),
			zap.String("event_type", string(eventType)),
			zap.Error(err))
	}
}

// aggregate derives the run outcome from a terminal workflow snapshot.
// The output of a completed workflow is the terminal task's output; the
// error of a failed workflow is the first failure in plan order.
func aggregate(wf *domain.Workflow) *RunResult {
	res := &RunResult{
		WorkflowID: wf.WorkflowID,
		Status:     wf.Status,
		Summary:    wf.Summary(),
	}

	if wf.Status == domain.WorkflowStatusCompleted {
		if terminal := resolver.TerminalTask(wf.Tasks); terminal != nil && terminal.Result != nil {
			res.Output = terminal.Result.Output
		}
		return res
	}

	if failed := resolver.FirstFailed(wf.Tasks); failed != nil {
		res.FailedTask = failed.TaskID
		if failed.Result != nil {
			res.Error = fmt.Sprintf("task %s: %s", failed.TaskID, failed.Result.Error)
		}
	}
	if res.Error == "" {
		res.Error = fmt.Sprintf("workflow %s did not complete", wf.WorkflowID)
	}
	return res
}

func isGraphError(err error) bool {
	return errors.Is(err, domain.ErrInvalidGraph)
}
