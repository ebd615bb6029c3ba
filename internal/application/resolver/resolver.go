package resolver

import (
	"sort"

	"github.com/taskmesh/taskmesh/internal/domain"
)

// Ready returns the tasks eligible to run over the given snapshot: status
// pending or ready, with every dependency completed. The result is ordered
// by ascending priority, then plan order.
func Ready(tasks []*domain.Task) []*domain.Task {
	byID := index(tasks)

	var eligible []*domain.Task
	order := make(map[string]int, len(tasks))
	for i, t := range tasks {
		order[t.TaskID] = i
		if t.Status != domain.TaskStatusPending && t.Status != domain.TaskStatusReady {
			continue
		}
		satisfied := true
		for _, dep := range t.Dependencies {
			d := byID[dep]
			if d == nil || d.Status != domain.TaskStatusCompleted {
				satisfied = false
				break
			}
		}
		if satisfied {
			eligible = append(eligible, t)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return order[eligible[i].TaskID] < order[eligible[j].TaskID]
	})

	return eligible
}

// PropagateSkips marks every pending or ready task with a failed or skipped
// dependency as skipped, transitively, until a fixed point is reached. It
// mutates the tasks in place and returns the ids of newly skipped tasks in
// plan order.
func PropagateSkips(tasks []*domain.Task) []string {
	byID := index(tasks)

	var skipped []string
	for {
		changed := false
		for _, t := range tasks {
			if t.Status != domain.TaskStatusPending && t.Status != domain.TaskStatusReady {
				continue
			}
			for _, dep := range t.Dependencies {
				d := byID[dep]
				if d == nil {
					continue
				}
				if d.Status == domain.TaskStatusFailed || d.Status == domain.TaskStatusSkipped {
					t.Status = domain.TaskStatusSkipped
					skipped = append(skipped, t.TaskID)
					changed = true
					break
				}
			}
		}
		if !changed {
			return skipped
		}
	}
}

// TerminalTask returns the task that supplies the workflow's final output:
// the task no other task depends on, or the last such task in plan order if
// several qualify. Returns nil for an empty task list.
func TerminalTask(tasks []*domain.Task) *domain.Task {
	hasDependent := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			hasDependent[dep] = true
		}
	}

	var terminal *domain.Task
	for _, t := range tasks {
		if !hasDependent[t.TaskID] {
			terminal = t
		}
	}
	if terminal == nil && len(tasks) > 0 {
		terminal = tasks[len(tasks)-1]
	}
	return terminal
}

// CriticalPath returns the set of task ids the terminal task transitively
// depends on, including the terminal task itself. A failure inside this set
// means the workflow's final output can no longer be produced.
func CriticalPath(tasks []*domain.Task) map[string]bool {
	terminal := TerminalTask(tasks)
	if terminal == nil {
		return nil
	}
	byID := index(tasks)

	path := make(map[string]bool)
	var visit func(id string)
	visit = func(id string) {
		if path[id] {
			return
		}
		path[id] = true
		t := byID[id]
		if t == nil {
			return
		}
		for _, dep := range t.Dependencies {
			visit(dep)
		}
	}
	visit(terminal.TaskID)
	return path
}

// FirstFailed returns the first failed task in plan order, or nil.
func FirstFailed(tasks []*domain.Task) *domain.Task {
	for _, t := range tasks {
		if t.Status == domain.TaskStatusFailed {
			return t
		}
	}
	return nil
}

func index(tasks []*domain.Task) map[string]*domain.Task {
	byID := make(map[string]*domain.Task, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}
	return byID
}
