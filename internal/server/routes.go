// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import (
	"net/http"

	"github.com/loftwork/loft-realtime/internal/realtime"
)

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check and the WebSocket endpoint.
func SetupRoutes(hub *realtime.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	return mux
}
