package domain

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Validate checks the structural invariants of the workflow's task graph:
// task ids are unique and non-empty, every dependency references a task in
// the same workflow, no task depends on itself directly or transitively, and
// agent types are known. Violations are reported as ErrInvalidGraph.
func (w *Workflow) Validate() error {
	if w.WorkflowID == "" {
		return fmt.Errorf("%w: workflow_id is required", ErrInvalidGraph)
	}
	if len(w.Tasks) == 0 {
		return fmt.Errorf("%w: workflow must have at least one task", ErrInvalidGraph)
	}

	seen := make(map[string]bool, len(w.Tasks))
	for _, t := range w.Tasks {
		if t.TaskID == "" {
			return fmt.Errorf("%w: task_id is required", ErrInvalidGraph)
		}
		if seen[t.TaskID] {
			return fmt.Errorf("%w: duplicate task_id %q", ErrInvalidGraph, t.TaskID)
		}
		seen[t.TaskID] = true
		if !t.AgentType.Valid() {
			return fmt.Errorf("%w: task %q has unknown agent_type %q", ErrInvalidGraph, t.TaskID, t.AgentType)
		}
	}

	for _, t := range w.Tasks {
		for _, dep := range t.Dependencies {
			if dep == t.TaskID {
				return fmt.Errorf("%w: task %q depends on itself", ErrInvalidGraph, t.TaskID)
			}
			if !seen[dep] {
				return fmt.Errorf("%w: task %q depends on unknown task %q", ErrInvalidGraph, t.TaskID, dep)
			}
		}
	}

	// Cycle detection via topological sort. An edge (dep, task) means dep
	// must complete before task.
	var edges []toposort.Edge
	for _, t := range w.Tasks {
		if len(t.Dependencies) == 0 {
			edges = append(edges, toposort.Edge{nil, t.TaskID})
			continue
		}
		for _, dep := range t.Dependencies {
			edges = append(edges, toposort.Edge{dep, t.TaskID})
		}
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("%w: dependency cycle detected: %v", ErrInvalidGraph, err)
	}

	return nil
}
