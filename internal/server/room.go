// Package server keeps room membership and fans chat messages out to every
// member of a room.
package server

import (
	"log"
	"sync"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Member is a room participant that can accept outbound payloads.
// *Connection is the production implementation.
type Member interface {
	ID() string
	Send(payload []byte) error
	IsOpen() bool
}

// Room is a named set of members. Membership is guarded by mu; fanout
// serializes broadcasts so every member sees them in the same order.
type Room struct {
	id      string
	metrics *Metrics

	mu      sync.RWMutex
	members map[Member]struct{}

	fanout sync.Mutex
}

// NewRoom creates an empty room with the given id.
func NewRoom(id string) *Room {
	return newRoom(id, nil)
}

func newRoom(id string, metrics *Metrics) *Room {
	return &Room{
		id:      id,
		metrics: metrics,
		members: make(map[Member]struct{}),
	}
}

// ID returns the room id, which always equals its registry key.
func (r *Room) ID() string {
	return r.id
}

// Len returns the number of members.
func (r *Room) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Members returns a snapshot of the current members in no particular order.
func (r *Room) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.members))
	for m := range r.members {
		members = append(members, m)
	}
	return members
}

// Join adds m to the room. Joining twice has no further effect.
func (r *Room) Join(m Member) {
	r.mu.Lock()
	_, exists := r.members[m]
	r.members[m] = struct{}{}
	count := len(r.members)
	r.mu.Unlock()

	if exists {
		return
	}
	r.metrics.connectionJoined()
	log.Printf("Member %s joined room %s. Members: %d", m.ID(), r.id, count)
}

// Leave removes m from the room and reports whether it was a member.
func (r *Room) Leave(m Member) bool {
	r.mu.Lock()
	_, exists := r.members[m]
	delete(r.members, m)
	count := len(r.members)
	r.mu.Unlock()

	if !exists {
		return false
	}
	r.metrics.connectionLeft()
	log.Printf("Member %s left room %s. Members: %d", m.ID(), r.id, count)
	return true
}

// Broadcast encodes msg once and sends the payload to every open member,
// skipping sender when excludeSelf is set. A member that fails to accept the
// payload is logged and skipped. It returns the number of members reached.
func (r *Room) Broadcast(msg chat.Message, sender Member, excludeSelf bool) int {
	payload, err := chat.Encode(msg)
	if err != nil {
		log.Printf("Error encoding message for room %s: %v", r.id, err)
		return 0
	}

	r.fanout.Lock()
	defer r.fanout.Unlock()

	delivered := 0
	for _, member := range r.Members() {
		if excludeSelf && sender != nil && member == sender {
			continue
		}
		if !member.IsOpen() {
			continue
		}
		if err := member.Send(payload); err != nil {
			r.metrics.delivered(false)
			log.Printf("Error delivering message to %s in room %s: %v", member.ID(), r.id, err)
			continue
		}
		r.metrics.delivered(true)
		delivered++
	}
	return delivered
}
