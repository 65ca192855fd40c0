package server_test

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/server"
)

const readTimeout = 2 * time.Second

func newTestServer(t *testing.T, customize func(cfg *server.Config)) (*server.Server, *httptest.Server) {
	t.Helper()
	cfg := server.NewConfig()
	if customize != nil {
		customize(cfg)
	}
	srv := server.NewServer(cfg)
	testServer := httptest.NewServer(server.SetupRoutes(srv))
	t.Cleanup(testServer.Close)
	return srv, testServer
}

func chatURL(t *testing.T, baseURL string, query url.Values) string {
	t.Helper()
	u, err := url.Parse(baseURL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/chat"
	u.RawQuery = query.Encode()
	return u.String()
}

func dialRoom(t *testing.T, baseURL, roomID string) *websocket.Conn {
	t.Helper()
	return dial(t, chatURL(t, baseURL, url.Values{"roomId": {roomID}}))
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(rawURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForMembers(t *testing.T, srv *server.Server, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		room, ok := srv.Registry().Get(roomID)
		return ok && room.Len() == n
	}, readTimeout, 10*time.Millisecond, "room %s never reached %d members", roomID, n)
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(payload)))
}

func sendMessage(t *testing.T, conn *websocket.Conn, msg chat.Message) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	send(t, conn, string(data))
}

func receive(t *testing.T, conn *websocket.Conn) chat.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := chat.Decode(data)
	require.NoError(t, err, "payload %s", data)
	return msg
}

// expectNoMessage waits out timeout on conn. The timed-out read leaves conn
// unusable, so it must be the last read on that connection.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "expected no message, got %s", data)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

// TestChatRequiresRoomID verifies that a connection without a usable roomId
// is closed right away and never reaches the registry.
func TestChatRequiresRoomID(t *testing.T) {
	tests := []struct {
		name  string
		query url.Values
	}{
		{name: "missing parameter", query: url.Values{}},
		{name: "empty parameter", query: url.Values{"roomId": {""}}},
		{name: "blank parameter", query: url.Values{"roomId": {"   "}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, testServer := newTestServer(t, nil)
			conn := dial(t, chatURL(t, testServer.URL, tt.query))

			require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
			_, _, err := conn.ReadMessage()

			var closeErr *websocket.CloseError
			require.ErrorAs(t, err, &closeErr)
			assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
			assert.Equal(t, "Room ID required", closeErr.Text)
			assert.Equal(t, 0, srv.Registry().Len())
		})
	}
}

// TestChatEndToEnd walks through room creation, two joins, and one message.
func TestChatEndToEnd(t *testing.T) {
	srv, testServer := newTestServer(t, nil)

	resp, err := http.Post(testServer.URL+"/room", "application/json", http.NoBody)
	require.NoError(t, err)
	var created server.CreateRoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	_ = resp.Body.Close()
	roomID := created.RoomID

	client2 := dialRoom(t, testServer.URL, roomID)
	client1 := dialRoom(t, testServer.URL, roomID)
	waitForMembers(t, srv, roomID, 2)

	sendMessage(t, client1, chat.NewMessage(roomID, "alice", "hi"))

	got := receive(t, client2)
	assert.Equal(t, chat.NewMessage(roomID, "alice", "hi"), got)
	expectNoMessage(t, client2, 200*time.Millisecond)

	// The default deployment echoes to the sender too.
	assert.Equal(t, "hi", receive(t, client1).GetText())
}

// TestChatOverridesClientRoomID verifies that the connection's bound room wins
// over the roomId the client put in its message.
func TestChatOverridesClientRoomID(t *testing.T) {
	srv, testServer := newTestServer(t, nil)

	sender := dialRoom(t, testServer.URL, "Y")
	receiver := dialRoom(t, testServer.URL, "Y")
	bystander := dialRoom(t, testServer.URL, "X")
	waitForMembers(t, srv, "Y", 2)
	waitForMembers(t, srv, "X", 1)

	sendMessage(t, sender, chat.NewMessage("X", "u", "hi"))

	got := receive(t, receiver)
	assert.Equal(t, "Y", got.GetRoomID())
	assert.Equal(t, "u", got.GetUserName())
	assert.Equal(t, "hi", got.GetText())
	expectNoMessage(t, bystander, 200*time.Millisecond)
}

// TestChatFillsAbsentRoomID verifies that a message without roomId is still
// routed and stamped with the bound room.
func TestChatFillsAbsentRoomID(t *testing.T) {
	srv, testServer := newTestServer(t, nil)

	sender := dialRoom(t, testServer.URL, "r")
	receiver := dialRoom(t, testServer.URL, "r")
	waitForMembers(t, srv, "r", 2)

	send(t, sender, `{"text":"no room"}`)

	got := receive(t, receiver)
	assert.Equal(t, "r", got.GetRoomID())
	assert.Nil(t, got.UserName)
	assert.Equal(t, "no room", got.GetText())
}

// TestChatWithoutEcho verifies that disabling echo keeps a sender's message
// away from the sender only.
func TestChatWithoutEcho(t *testing.T) {
	srv, testServer := newTestServer(t, func(cfg *server.Config) {
		cfg.EchoToSender = false
	})

	sender := dialRoom(t, testServer.URL, "r")
	receiver := dialRoom(t, testServer.URL, "r")
	waitForMembers(t, srv, "r", 2)

	sendMessage(t, sender, chat.NewMessage("r", "alice", "quiet"))

	assert.Equal(t, "quiet", receive(t, receiver).GetText())
	expectNoMessage(t, sender, 200*time.Millisecond)
}

// TestChatDropsMalformedPayloads verifies that bad frames are discarded and the
// connection keeps working.
func TestChatDropsMalformedPayloads(t *testing.T) {
	srv, testServer := newTestServer(t, nil)

	sender := dialRoom(t, testServer.URL, "r")
	receiver := dialRoom(t, testServer.URL, "r")
	waitForMembers(t, srv, "r", 2)

	send(t, sender, "definitely not json")
	send(t, sender, "null")
	require.NoError(t, sender.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	sendMessage(t, sender, chat.NewMessage("r", "alice", "still here"))

	assert.Equal(t, "still here", receive(t, receiver).GetText())
	expectNoMessage(t, receiver, 200*time.Millisecond)
	assert.Equal(t, 2, mustRoom(t, srv, "r").Len())
}

// TestChatRoomsAreIsolated verifies that broadcasts stay inside their room.
func TestChatRoomsAreIsolated(t *testing.T) {
	srv, testServer := newTestServer(t, nil)

	a1 := dialRoom(t, testServer.URL, "a")
	a2 := dialRoom(t, testServer.URL, "a")
	b1 := dialRoom(t, testServer.URL, "b")
	waitForMembers(t, srv, "a", 2)
	waitForMembers(t, srv, "b", 1)

	sendMessage(t, a1, chat.NewMessage("a", "alice", "for a"))
	sendMessage(t, b1, chat.NewMessage("b", "bob", "for b"))

	assert.Equal(t, "for a", receive(t, a2).GetText())
	assert.Equal(t, "for b", receive(t, b1).GetText())
	expectNoMessage(t, a2, 200*time.Millisecond)
}

// TestChatLeavesRoomOnDisconnect verifies teardown for both a clean close
// handshake and an abrupt socket drop. The room itself is retained.
func TestChatLeavesRoomOnDisconnect(t *testing.T) {
	tests := []struct {
		name       string
		disconnect func(conn *websocket.Conn) error
	}{
		{
			name: "close frame",
			disconnect: func(conn *websocket.Conn) error {
				return conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			},
		},
		{
			name:       "abrupt close",
			disconnect: func(conn *websocket.Conn) error { return conn.Close() },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, testServer := newTestServer(t, nil)
			leaving := dialRoom(t, testServer.URL, "r")
			staying := dialRoom(t, testServer.URL, "r")
			waitForMembers(t, srv, "r", 2)

			require.NoError(t, tt.disconnect(leaving))
			waitForMembers(t, srv, "r", 1)

			sendMessage(t, staying, chat.NewMessage("r", "bob", "anyone?"))
			assert.Equal(t, "anyone?", receive(t, staying).GetText())
			assert.Equal(t, 1, srv.Registry().Len())
		})
	}
}

// TestCloseConnections verifies that shutdown closes open connections with a
// going-away status and waits for their handlers.
func TestCloseConnections(t *testing.T) {
	srv, testServer := newTestServer(t, nil)
	conns := []*websocket.Conn{
		dialRoom(t, testServer.URL, "a"),
		dialRoom(t, testServer.URL, "b"),
	}
	waitForMembers(t, srv, "a", 1)
	waitForMembers(t, srv, "b", 1)

	require.NoError(t, srv.CloseConnections(5*time.Second))

	for _, conn := range conns {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
		_, _, err := conn.ReadMessage()
		assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
	}
	rooms, connections := srv.Registry().Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 0, connections)
}

func mustRoom(t *testing.T, srv *server.Server, roomID string) *server.Room {
	t.Helper()
	room, ok := srv.Registry().Get(roomID)
	require.True(t, ok, "room %s not found", roomID)
	return room
}
