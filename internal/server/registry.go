package server

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

const maxCreateAttempts = 16

// ErrRoomIDExhausted is returned by Create when no unused id could be
// generated.
var ErrRoomIDExhausted = errors.New("could not generate an unused room id")

// Registry maps room ids to rooms. It is the single source of truth for
// whether a room exists. Rooms are never evicted, even when empty.
type Registry struct {
	mu      sync.RWMutex
	rooms   map[string]*Room
	metrics *Metrics
	newID   func() string
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithMetrics records room and membership changes on m.
func WithMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) { r.metrics = m }
}

// WithIDGenerator replaces the uuid generator used by Create.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		rooms: make(map[string]*Room),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the room for roomID, creating it if needed. Concurrent
// callers with the same id always receive the same *Room.
func (r *Registry) GetOrCreate(roomID string) *Room {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if ok {
		return room
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok = r.rooms[roomID]; ok {
		return room
	}
	room = newRoom(roomID, r.metrics)
	r.rooms[roomID] = room
	r.metrics.roomCreated()
	return room
}

// Create inserts an empty room under a freshly generated id. It gives up
// with ErrRoomIDExhausted when the generator keeps producing empty or taken
// ids.
func (r *Registry) Create() (*Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := r.newID()
		if _, taken := r.rooms[id]; taken || id == "" {
			continue
		}
		room := newRoom(id, r.metrics)
		r.rooms[id] = room
		r.metrics.roomCreated()
		return room, nil
	}
	return nil, ErrRoomIDExhausted
}

// Get looks up a room without creating it.
func (r *Registry) Get(roomID string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Len returns the number of rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Stats returns the number of rooms and the total number of members.
func (r *Registry) Stats() (rooms, connections int) {
	snapshot := r.snapshot()
	for _, room := range snapshot {
		connections += room.Len()
	}
	return len(snapshot), connections
}

type shutdowner interface {
	Shutdown(reason string)
}

// CloseAll closes every member that can be closed. Rooms stay registered.
func (r *Registry) CloseAll(reason string) int {
	closed := 0
	for _, room := range r.snapshot() {
		for _, m := range room.Members() {
			if c, ok := m.(shutdowner); ok {
				c.Shutdown(reason)
				closed++
			}
		}
	}
	return closed
}

func (r *Registry) snapshot() []*Room {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]*Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
