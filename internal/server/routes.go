// Package server wires HTTP handlers into a ServeMux for the relay via
// routing helpers.
package server

import (
	"net/http"

	"github.com/rs/cors"
)

// SetupRoutes configures the relay's routes and wraps them in the CORS
// policy derived from the allowed origins.
func SetupRoutes(s *Server) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", RootHandler)
	mux.HandleFunc("GET /health", HealthHandler)
	mux.HandleFunc("POST /room", s.CreateRoomHandler)
	mux.HandleFunc("/chat", s.ChatHandler)
	mux.HandleFunc("GET /stats", s.StatsHandler)
	mux.Handle("GET /metrics", s.metrics.Handler())

	c := cors.New(cors.Options{
		AllowedOrigins: s.origins.corsOrigins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}
