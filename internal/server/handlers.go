// Package server exposes HTTP handlers, including the chat WebSocket upgrade,
// room creation, health checks, and stats.
package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

const (
	bannerText = "Console Chat Server is Operational."
	healthText = "healthy"
)

// CreateRoomResponse is the body returned by POST /room.
type CreateRoomResponse struct {
	RoomID string `json:"roomId"`
}

// StatsResponse is the body returned by GET /stats.
type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// RootHandler responds with a plain text liveness banner.
func RootHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, bannerText)
}

// HealthHandler reports that the process can accept connections.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, healthText)
}

// CreateRoomHandler creates an empty room under a generated id.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, _ *http.Request) {
	room, err := s.registry.Create()
	if err != nil {
		log.Printf("Error creating room: %v", err)
		http.Error(w, "Unable to create room", http.StatusInternalServerError)
		return
	}
	log.Printf("Room %s created", room.ID())
	writeJSON(w, CreateRoomResponse{RoomID: room.ID()})
}

// StatsHandler reports room and connection counts.
func (s *Server) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	rooms, connections := s.registry.Stats()
	writeJSON(w, StatsResponse{Rooms: rooms, Connections: connections})
}

// ChatHandler upgrades GET /chat?roomId=<id> to a WebSocket and runs the
// connection until it closes. A missing or blank roomId closes the socket
// right after the upgrade with status 1000 and reason "Room ID required".
func (s *Server) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. Chat endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	// Counted before the upgrade so CloseConnections waits for handshakes
	// that are still in flight.
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	roomID := r.URL.Query().Get("roomId")
	if strings.TrimSpace(roomID) == "" {
		rejectConnection(conn, r.RemoteAddr)
		return
	}

	h := newConnectionHandler(s, NewConnection(conn, r.RemoteAddr, s.cfg), roomID)
	h.serve()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
