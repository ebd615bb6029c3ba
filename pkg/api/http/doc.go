// Package http provides the REST API.
//
// Endpoints cover workflow submission, execution, status queries and
// results, plus health checks and Prometheus metrics.
package http
