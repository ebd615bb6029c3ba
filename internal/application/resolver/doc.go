// Package resolver computes task eligibility over a workflow snapshot: the
// ready set, transitive skip propagation, and the terminal task that carries
// the workflow's final output. All functions are pure over the task list the
// caller passes in; the scheduler invokes them inside store updates so the
// results stay consistent with persisted state.
package resolver
