// Package executors maps agent types to task executors and dispatches tasks
// to them with a per-task timeout.
//
// The built-in executors (general, browser, data_analysis) are LLM-backed:
// each wraps the same LLM client with a different system prompt and feeds
// dependency outputs into the task prompt. ExecutorFunc adapts plain
// functions for embedding and tests.
package executors
