package domain

import "errors"

// Error taxonomy for the orchestrator. Callers classify failures with
// errors.Is; wrapping sites add context with fmt.Errorf and %w.
var (
	// ErrAlreadyExists is returned when creating a workflow whose id is taken.
	ErrAlreadyExists = errors.New("workflow already exists")

	// ErrNotFound is returned when a workflow id is unknown to the store.
	ErrNotFound = errors.New("workflow not found")

	// ErrInvalidGraph is returned when a task graph is cyclic, references
	// unknown task ids, or is otherwise malformed.
	ErrInvalidGraph = errors.New("invalid task graph")

	// ErrPlanning is returned when the planner produces an empty or
	// malformed plan.
	ErrPlanning = errors.New("planning failed")

	// ErrExecution is returned when an executor reports a failure.
	ErrExecution = errors.New("task execution failed")

	// ErrTimeout is returned when an executor exceeds its allotted time.
	ErrTimeout = errors.New("task execution timed out")

	// ErrPersistence is returned on I/O failures reading or writing the store.
	ErrPersistence = errors.New("persistence failure")
)
