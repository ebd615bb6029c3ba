// Package ports defines the interfaces between the application core and its
// adapters: workflow storage, task executors, the planner, the event bus,
// metrics, and the LLM client. Adapters under pkg/adapters implement them;
// the application packages depend only on these contracts.
package ports
