// Package server implements the core HTTP and WebSocket server functionality
// for the room chat relay.
//
// The implementation is organized into specialized files for configuration,
// the room registry, rooms, connections, the per-connection handler, routing,
// HTTP handlers, and metrics to keep the codebase maintainable and testable.
package server
