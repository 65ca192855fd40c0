// Package server implements the relay's room registry, broadcast engine,
// connection handling, and HTTP surface.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server ties together the configuration, the room registry, and the
// WebSocket upgrader. One Server backs one HTTP listener.
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *Metrics
	origins  *originPolicy
	upgrader websocket.Upgrader

	// wg tracks live connection handlers for shutdown.
	wg sync.WaitGroup
}

// NewServer builds a Server from cfg. A nil cfg uses the defaults.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	sanitized := sanitizeConfig(*cfg)
	metrics := NewMetrics()

	s := &Server{
		cfg:      sanitized,
		registry: NewRegistry(WithMetrics(metrics)),
		metrics:  metrics,
		origins:  newOriginPolicy(sanitized.AllowedOrigins),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.checkOrigin,
	}
	return s
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	cfg := s.cfg
	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Registry returns the room registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// CloseConnections closes every open connection with a going-away status and
// waits for their handlers to finish, or until the timeout is reached.
func (s *Server) CloseConnections(timeout time.Duration) error {
	log.Println("Closing all chat connections...")
	closed := s.registry.CloseAll("server shutting down")
	log.Printf("Sent close to %d connections", closed)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All connection handlers finished")
		return nil
	case <-time.After(timeout):
		log.Println("Connection shutdown timeout reached, some handlers may still be running")
		return context.DeadlineExceeded
	}
}
