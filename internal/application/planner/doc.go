// Package planner turns natural-language requests into task plans. The
// LLM-backed planner prompts a model for a JSON task array; the static
// planner serves pre-planned workflows and tests.
package planner
