// Package domain holds the core types of the orchestrator: workflows, tasks,
// results, lifecycle events, and the error taxonomy.
//
// A Workflow is a persisted DAG of Tasks. Each task declares an agent type
// (which executor handles it), a dependency set, and a priority. Structural
// invariants are enforced by Workflow.Validate before a workflow is ever
// persisted.
package domain
