package ports

import (
	"context"
	"time"

	"github.com/taskmesh/taskmesh/internal/domain"
)

// WorkflowMutation is applied to a workflow snapshot inside Update. Returning
// an error aborts the update without persisting anything.
type WorkflowMutation func(wf *domain.Workflow) error

// WorkflowStore is the durable record of workflows and their task state.
// Update is the single point of serialization for the whole system: every
// status or result write passes through it, and implementations must apply
// the read-modify-write atomically with respect to concurrent callers.
type WorkflowStore interface {
	// Create persists a new workflow. It fails with domain.ErrAlreadyExists
	// if the workflow id is taken and with domain.ErrInvalidGraph if the
	// task graph does not validate. Nothing is persisted on failure.
	Create(ctx context.Context, wf *domain.Workflow) error

	// Get returns a full snapshot, or domain.ErrNotFound.
	Get(ctx context.Context, workflowID string) (*domain.Workflow, error)

	// Update applies a mutation under mutual exclusion and returns the
	// updated snapshot.
	Update(ctx context.Context, workflowID string, mutate WorkflowMutation) (*domain.Workflow, error)

	// List returns summaries for all known workflows.
	List(ctx context.Context) ([]domain.WorkflowSummary, error)

	// Delete removes a whole workflow, or returns domain.ErrNotFound.
	Delete(ctx context.Context, workflowID string) error
}

// Executor performs one kind of task. Implementations may do network or
// subprocess I/O; the dispatcher wraps every invocation with a per-task
// timeout. The deps map carries the results of the task's completed
// dependencies, keyed by task id. Executors receive immutable snapshots and
// return new result values; they never mutate shared state.
type Executor interface {
	Kind() domain.AgentType
	Execute(ctx context.Context, task *domain.Task, deps map[string]*domain.Result) (*domain.Result, error)
}

// Planner turns a natural-language request into an ordered sequence of task
// specs. It is an external collaborator consumed as a black box.
type Planner interface {
	Plan(ctx context.Context, request string) ([]domain.TaskSpec, error)
}

// EventHandler consumes one event from the bus.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus publishes and subscribes to workflow lifecycle events.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}

// MetricsCollector records orchestrator metrics.
type MetricsCollector interface {
	RecordWorkflowCreated(status string)
	RecordWorkflowCompleted(status string, duration time.Duration)
	RecordTaskExecuted(agentType, status string, duration time.Duration)
	RecordPlanning(status string, duration time.Duration)
	SetActiveWorkflows(count int)
}

// LLMClient is the narrow contract to an LLM provider, used by the planner
// and the LLM-backed executors.
type LLMClient interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}
