package server

import (
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const roomIDRequired = "Room ID required"

// phase tracks where a connection is in its handler lifecycle.
type phase int

const (
	phaseAccepted phase = iota
	phaseJoined
	phaseReceiving
	phaseClosing
	phaseClosed
)

func (p phase) String() string {
	switch p {
	case phaseAccepted:
		return "accepted"
	case phaseJoined:
		return "joined"
	case phaseReceiving:
		return "receiving"
	case phaseClosing:
		return "closing"
	case phaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// connectionHandler runs the read loop for one accepted connection. Its room
// binding is fixed at join time.
type connectionHandler struct {
	conn     *Connection
	roomID   string
	room     *Room
	registry *Registry
	metrics  *Metrics
	limiter  *rateLimiter
	echo     bool

	mu           sync.Mutex
	phase        phase
	teardownOnce sync.Once
}

func newConnectionHandler(s *Server, conn *Connection, roomID string) *connectionHandler {
	return &connectionHandler{
		conn:     conn,
		roomID:   roomID,
		registry: s.registry,
		metrics:  s.metrics,
		limiter:  newRateLimiter(s.cfg.RateLimit),
		echo:     s.cfg.EchoToSender,
		phase:    phaseAccepted,
	}
}

func (h *connectionHandler) setPhase(p phase) {
	h.mu.Lock()
	h.phase = p
	h.mu.Unlock()
}

func (h *connectionHandler) currentPhase() phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.phase
}

// serve joins the bound room and reads until the peer goes away.
func (h *connectionHandler) serve() {
	h.room = h.registry.GetOrCreate(h.roomID)
	h.room.Join(h.conn)
	h.setPhase(phaseJoined)
	defer h.teardown()

	h.setPhase(phaseReceiving)
	for {
		messageType, raw, err := h.conn.ReadMessage()
		if err != nil {
			h.conn.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		h.processMessage(raw)
	}
}

// processMessage decodes, rebinds, and broadcasts one inbound frame. Frames
// that are rate limited or malformed are dropped.
func (h *connectionHandler) processMessage(raw []byte) {
	if !h.limiter.allow() {
		h.metrics.messageDropped(dropRateLimited)
		log.Printf("Rate limit exceeded for %s; discarding message", h.conn.Addr())
		return
	}

	msg, err := chat.Decode(raw)
	if err != nil {
		h.metrics.messageDropped(dropMalformed)
		log.Printf("Invalid message from %s: %v", h.conn.Addr(), err)
		return
	}

	// The bound room wins over whatever the client claimed.
	msg = msg.WithRoomID(h.roomID)
	h.metrics.messageReceived()
	log.Printf("[%s] %s: %s", h.roomID, msg.GetUserName(), msg.GetText())

	h.room.Broadcast(msg, h.conn, !h.echo)
}

// teardown leaves the room and closes the transport exactly once.
func (h *connectionHandler) teardown() {
	h.teardownOnce.Do(func() {
		log.Printf("Connection %s leaving room %s while %s", h.conn.Addr(), h.roomID, h.currentPhase())
		h.setPhase(phaseClosing)
		if h.room != nil {
			h.room.Leave(h.conn)
		}
		h.conn.Close(websocket.CloseNormalClosure, "Closing")

		select {
		case <-h.conn.Done():
		case <-time.After(2 * writeWait):
			log.Printf("Timed out waiting for %s to close", h.conn.Addr())
		}
		h.setPhase(phaseClosed)
	})
}

// rejectConnection closes a socket that named no room. It never reaches the
// registry.
func rejectConnection(conn *websocket.Conn, addr string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, roomIDRequired)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.Printf("Error writing close message to %s: %v", addr, err)
	}
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing rejected connection from %s: %v", addr, err)
	}
	log.Printf("Rejected connection from %s: %s", addr, roomIDRequired)
}
