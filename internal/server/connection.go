// Package server manages individual WebSocket connections, handling the write
// pump, keepalive, and lifecycle state for each participant.
package server

import (
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 256
)

var (
	// ErrConnectionClosed is returned by Send once the connection has left
	// the open state.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not draining
	// its outbound queue fast enough.
	ErrSendBufferFull = errors.New("send buffer full")
)

// State is the lifecycle stage of a Connection.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one participant's WebSocket. Reads happen on the handler's
// goroutine; writes are funneled through the send channel to writePump.
type Connection struct {
	id        string
	addr      string
	conn      *websocket.Conn
	keepAlive time.Duration
	maxSize   int64

	state atomic.Int32

	// mu orders Send against the close of send.
	mu          sync.Mutex
	send        chan []byte
	closeOnce   sync.Once
	closeCode   int
	closeReason string

	done chan struct{}
}

// NewConnection wraps an upgraded socket and starts its write pump.
func NewConnection(conn *websocket.Conn, addr string, cfg Config) *Connection {
	c := &Connection{
		id:        uuid.NewString(),
		addr:      addr,
		conn:      conn,
		keepAlive: cfg.KeepAlive,
		maxSize:   cfg.MaxMessageSize,
		send:      make(chan []byte, sendBufferSize),
		closeCode: websocket.CloseNormalClosure,
		done:      make(chan struct{}),
	}
	c.state.Store(int32(StateOpen))

	conn.SetReadLimit(cfg.MaxMessageSize)
	// The close reply is left to writePump so queued payloads go out first.
	conn.SetCloseHandler(func(int, string) error { return nil })
	c.setupReadConnection()
	go c.writePump()
	return c
}

// ID returns the connection's generated identifier.
func (c *Connection) ID() string {
	return c.id
}

// Addr returns the remote address the connection was accepted from.
func (c *Connection) Addr() string {
	return c.addr
}

// State returns the current lifecycle stage.
func (c *Connection) State() State {
	return State(c.state.Load())
}

// IsOpen reports whether the connection still accepts outbound payloads.
func (c *Connection) IsOpen() bool {
	return c.State() == StateOpen
}

// Send queues payload for delivery without blocking.
func (c *Connection) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.State() != StateOpen {
		return ErrConnectionClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close sends a close frame with the given code and reason once any queued
// payloads are flushed, then closes the socket. It is safe to call more than
// once; only the first call has any effect.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		c.closeCode = code
		c.closeReason = reason
		c.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
		close(c.send)
	})
}

// Shutdown closes the connection with a going-away status.
func (c *Connection) Shutdown(reason string) {
	c.Close(websocket.CloseGoingAway, reason)
}

// Done is closed after the write pump has released the socket.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ReadMessage blocks for the next inbound frame.
func (c *Connection) ReadMessage() (int, []byte, error) {
	return c.conn.ReadMessage()
}

// setupReadConnection configures read deadlines and the pong handler when
// keepalive is enabled.
func (c *Connection) setupReadConnection() {
	if c.keepAlive <= 0 {
		return
	}
	pongWait := c.keepAlive * 10 / 9

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs the reason a read loop ended. Every read error is
// terminal for gorilla connections.
func (c *Connection) handleReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", c.addr, c.maxSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Client %s disconnected: %v", c.addr, err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", c.addr, err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		log.Printf("Unexpected WebSocket error from %s: %v", c.addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", c.addr, err)
	}
}

func (c *Connection) writePump() {
	var tick <-chan time.Time
	if c.keepAlive > 0 {
		ticker := time.NewTicker(c.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}
	defer func() {
		c.closeSocket()
		c.state.Store(int32(StateClosed))
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.writeCloseMessage()
				return
			}
			if !c.writeTextMessage(message) {
				return
			}
		case <-tick:
			if !c.writePing() {
				return
			}
		}
	}
}

// closeSocket closes the underlying socket, logging only unexpected errors.
func (c *Connection) closeSocket() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection to %s: %v", c.addr, err)
	}
}

func (c *Connection) writeCloseMessage() {
	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()

	msg := websocket.FormatCloseMessage(code, reason)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
}

func (c *Connection) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

func (c *Connection) writePing() bool {
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
		log.Printf("Error writing ping message to %s: %v", c.addr, err)
		return false
	}
	return true
}
