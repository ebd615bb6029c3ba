// Package scheduler implements the core execution loop of a workflow.
//
// The loop resolves the ready set, dispatches ready tasks (all of them when
// parallel execution is enabled, exactly one otherwise), records each
// completion through the store, and re-resolves after every completion. A
// failure on the path to the workflow's final output stops further dispatch
// while in-flight tasks drain; skip propagation marks the dependents of
// failed or skipped tasks. The loop never retries and always exits with the
// workflow in a terminal status.
package scheduler
