package domain

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusCreated   WorkflowStatus = "created"
	WorkflowStatusRunning   WorkflowStatus = "running"
	WorkflowStatusCompleted WorkflowStatus = "completed"
	WorkflowStatusFailed    WorkflowStatus = "failed"
)

// Terminal reports whether the status is final for a workflow.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed
}

// Workflow is a named task graph plus its execution state. Tasks keep plan
// order (insertion order), not execution order. The workflow is the unit of
// persistence and of deletion; individual tasks are never deleted.
type Workflow struct {
	WorkflowID        string         `json:"workflow_id"`
	CreatedAt         time.Time      `json:"created_at"`
	Status            WorkflowStatus `json:"status"`
	Tasks             []*Task        `json:"tasks"`
	ParallelExecution bool           `json:"parallel_execution"`
}

// NewWorkflow builds a workflow in the created state from planner specs.
// Tasks start pending, in plan order.
func NewWorkflow(workflowID string, specs []TaskSpec, parallel bool) *Workflow {
	tasks := make([]*Task, 0, len(specs))
	for _, spec := range specs {
		agentType := spec.AgentType
		if agentType == "" {
			agentType = AgentTypeGeneral
		}
		deps := spec.Dependencies
		if deps == nil {
			deps = []string{}
		}
		tasks = append(tasks, &Task{
			TaskID:       spec.TaskID,
			Type:         TaskTypeAgent,
			Description:  spec.Description,
			AgentType:    agentType,
			Dependencies: deps,
			Priority:     spec.Priority,
			Status:       TaskStatusPending,
		})
	}

	return &Workflow{
		WorkflowID:        workflowID,
		CreatedAt:         time.Now().UTC(),
		Status:            WorkflowStatusCreated,
		Tasks:             tasks,
		ParallelExecution: parallel,
	}
}

// Task returns the task with the given id, or nil.
func (w *Workflow) Task(taskID string) *Task {
	for _, t := range w.Tasks {
		if t.TaskID == taskID {
			return t
		}
	}
	return nil
}

// Clone returns a deep copy of the workflow.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	cp := *w
	cp.Tasks = make([]*Task, len(w.Tasks))
	for i, t := range w.Tasks {
		cp.Tasks[i] = t.Clone()
	}
	return &cp
}

// WorkflowSummary is the listing view of a workflow.
type WorkflowSummary struct {
	WorkflowID     string         `json:"workflow_id"`
	Status         WorkflowStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	FailedTasks    int            `json:"failed_tasks"`
	SkippedTasks   int            `json:"skipped_tasks"`
}

// Summary derives the listing view from the workflow snapshot.
func (w *Workflow) Summary() WorkflowSummary {
	s := WorkflowSummary{
		WorkflowID: w.WorkflowID,
		Status:     w.Status,
		CreatedAt:  w.CreatedAt,
		TotalTasks: len(w.Tasks),
	}
	for _, t := range w.Tasks {
		switch t.Status {
		case TaskStatusCompleted:
			s.CompletedTasks++
		case TaskStatusFailed:
			s.FailedTasks++
		case TaskStatusSkipped:
			s.SkippedTasks++
		}
	}
	return s
}
