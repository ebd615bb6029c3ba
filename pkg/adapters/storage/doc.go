// Package storage provides workflow store implementations.
//
// Implementations:
//   - memory: In-memory for single-process deployments and testing
//   - file: One JSON document per workflow with atomic writes
//   - redis: Redis with JSON serialization and optional TTL
package storage
