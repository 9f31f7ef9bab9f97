// Package api implements the HTTP REST API and WebSocket server for camerad.
//
// This package provides:
//   - REST endpoints for camera status, frame-loss history and system metrics
//   - Read/write access to the debug-override parameters
//   - WebSocket hub for live frame records, thumbnails, losses and status
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Architecture
//
// The server is a read-mostly window onto the running control loops. The
// only writes are parameter changes, which go through the override store
// and are picked up by the exposure controller on its next frame.
//
// # Graceful Degradation
//
// The server operates without MQTT, InfluxDB or the loss history; the
// affected fields report as disconnected or empty.
package api
