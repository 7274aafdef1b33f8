// Package server implements the HTTP surface of the real-time core: the
// WebSocket upgrade endpoint, origin policy, configuration, and server
// lifecycle.
//
// The implementation is organized into specialized files for configuration,
// origin validation, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
