// Package orchestrator is the application facade: it plans workflows,
// persists them, hands them to the scheduler and aggregates the final
// outcome from the terminal task.
package orchestrator
