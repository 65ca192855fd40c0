package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/roomchat/internal/chat"
)

const writeWait = 10 * time.Second

// ErrSessionClosed is returned by Send after the connection stopped being open.
var ErrSessionClosed = errors.New("session closed")

// Session is one client connection to a room. Receive and Send may run on
// different goroutines; each direction has a single caller.
type Session struct {
	conn     *websocket.Conn
	roomID   string
	userName string
	history  *MessageLog
	renderer Renderer
	status   io.Writer

	open atomic.Bool
	// closeReason is written by Receive and read after it returns.
	closeReason string
}

// SessionOption customizes a Session.
type SessionOption func(*Session)

// WithRenderer sets the display refreshed after every received message.
func WithRenderer(r Renderer) SessionOption {
	return func(s *Session) { s.renderer = r }
}

// WithHistoryLimit bounds the local message log.
func WithHistoryLimit(limit int) SessionOption {
	return func(s *Session) { s.history = NewMessageLog(limit) }
}

// WithStatusOutput sets where connection notices are written.
func WithStatusOutput(w io.Writer) SessionOption {
	return func(s *Session) { s.status = w }
}

type nopRenderer struct{}

func (nopRenderer) Render([]chat.Message) {}

// NewSession wraps an established WebSocket connection.
func NewSession(conn *websocket.Conn, roomID, userName string, opts ...SessionOption) *Session {
	s := &Session{
		conn:     conn,
		roomID:   roomID,
		userName: userName,
		history:  NewMessageLog(0),
		renderer: nopRenderer{},
		status:   io.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.open.Store(true)
	return s
}

// Dial connects to chatURL and returns a Session for roomID.
func Dial(ctx context.Context, chatURL, roomID, userName string, opts ...SessionOption) (*Session, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
	}
	conn, resp, err := dialer.DialContext(ctx, chatURL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chatURL, err)
	}
	return NewSession(conn, roomID, userName, opts...), nil
}

// RoomID returns the room this session is bound to.
func (s *Session) RoomID() string {
	return s.roomID
}

// IsOpen reports whether Send may still be attempted.
func (s *Session) IsOpen() bool {
	return s.open.Load()
}

// Receive reads frames until the connection closes or ctx is done. Each
// decoded message is appended to the history and the renderer is refreshed.
// Frames that fail to decode are skipped. A normal close returns nil.
func (s *Session) Receive(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	defer func() {
		s.open.Store(false)
		_ = s.conn.Close()
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.closeReason = closeErr.Text
			}
			if isClosedError(err) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		msg, err := chat.Decode(data)
		if err != nil {
			continue
		}
		s.history.Append(msg)
		s.renderer.Render(s.history.Snapshot())
	}
}

// CloseReason returns the reason the server gave when it closed the
// connection. Only meaningful after Receive has returned.
func (s *Session) CloseReason() string {
	return s.closeReason
}

// Send writes text to the room as this session's user.
func (s *Session) Send(text string) error {
	if !s.IsOpen() {
		return ErrSessionClosed
	}

	payload, err := chat.Encode(chat.NewMessage(s.roomID, s.userName, text))
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Close starts the closing handshake. Receive returns once the server
// answers.
func (s *Session) Close() error {
	if !s.open.CompareAndSwap(true, false) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

// Run drives the session: a receive loop in the background and a send loop
// reading lines from input. Blank lines are ignored. The send loop ends when
// the receive loop does; the session is closed when input reaches EOF.
func (s *Session) Run(ctx context.Context, input io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	received := make(chan struct{})
	stopped := make(chan struct{})

	g.Go(func() error {
		defer close(received)
		return s.Receive(ctx)
	})
	g.Go(func() error {
		defer close(stopped)
		return s.sendLoop(ctx, readLines(input, stopped), received)
	})

	return g.Wait()
}

func (s *Session) sendLoop(ctx context.Context, lines <-chan string, received <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-received:
			return nil
		case line, ok := <-lines:
			if !ok {
				if err := s.Close(); err != nil && !isClosedError(err) {
					return fmt.Errorf("close session: %w", err)
				}
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := s.Send(line); err != nil {
				if errors.Is(err, ErrSessionClosed) || isClosedError(err) {
					_, _ = fmt.Fprintln(s.status, "Connection closed. Unable to send the message.")
					return nil
				}
				return err
			}
		}
	}
}

// readLines scans input on its own goroutine until EOF or stop is closed. A
// blocked terminal read cannot be interrupted, so that goroutine may outlive
// the session until the next line arrives.
func readLines(input io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}

func isClosedError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}
