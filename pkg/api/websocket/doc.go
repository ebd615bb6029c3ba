// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/workflows/:id/ws to receive live
// updates about workflow execution.
package websocket
