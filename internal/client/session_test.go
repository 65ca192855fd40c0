package client_test

import (
	"context"
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/client"
	"github.com/Tyrowin/roomchat/internal/server"
)

const waitTimeout = 2 * time.Second

// recordingRenderer hands every rendered snapshot to the test.
type recordingRenderer struct {
	frames chan []chat.Message
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{frames: make(chan []chat.Message, 64)}
}

func (r *recordingRenderer) Render(messages []chat.Message) {
	r.frames <- messages
}

func (r *recordingRenderer) next(t *testing.T) []chat.Message {
	t.Helper()
	select {
	case frame := <-r.frames:
		return frame
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a render")
		return nil
	}
}

func dialSession(t *testing.T, baseURL, roomID, userName string, opts ...client.SessionOption) *client.Session {
	t.Helper()
	chatURL, err := client.ChatURL(baseURL, roomID)
	require.NoError(t, err)
	session, err := client.Dial(context.Background(), chatURL, roomID, userName, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func waitForMembers(t *testing.T, srv *server.Server, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		room, ok := srv.Registry().Get(roomID)
		return ok && room.Len() == n
	}, waitTimeout, 10*time.Millisecond)
}

// TestSessionExchange verifies that two sessions in one room see each
// other's messages in order.
func TestSessionExchange(t *testing.T) {
	srv, testServer := newRelay(t)
	aliceView := newRecordingRenderer()
	bobView := newRecordingRenderer()

	alice := dialSession(t, testServer.URL, "room", "alice", client.WithRenderer(aliceView))
	bob := dialSession(t, testServer.URL, "room", "bob", client.WithRenderer(bobView))
	waitForMembers(t, srv, "room", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = alice.Receive(ctx) }()
	go func() { _ = bob.Receive(ctx) }()

	require.NoError(t, alice.Send("hello"))
	first := bobView.next(t)
	require.Len(t, first, 1)
	assert.Equal(t, chat.NewMessage("room", "alice", "hello"), first[0])

	require.NoError(t, bob.Send("hi alice"))
	second := bobView.next(t)
	require.Len(t, second, 2)
	assert.Equal(t, "hi alice", second[1].GetText())

	// alice sees her own echo, then bob's reply.
	assert.Len(t, aliceView.next(t), 1)
	aliceFrame := aliceView.next(t)
	require.Len(t, aliceFrame, 2)
	assert.Equal(t, "bob", aliceFrame[1].GetUserName())
}

// TestSessionRoomIDRequired verifies that the server's rejection reason is
// surfaced and the session stops accepting sends.
func TestSessionRoomIDRequired(t *testing.T) {
	_, testServer := newRelay(t)
	u, err := url.Parse(testServer.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/chat"

	session, err := client.Dial(context.Background(), u.String(), "", "alice")
	require.NoError(t, err)

	require.NoError(t, session.Receive(context.Background()))
	assert.Equal(t, "Room ID required", session.CloseReason())
	assert.False(t, session.IsOpen())
	assert.ErrorIs(t, session.Send("hello"), client.ErrSessionClosed)
}

// TestSessionRunEndsAtEOF verifies that Run sends each non-blank line and
// closes the session when input runs out.
func TestSessionRunEndsAtEOF(t *testing.T) {
	srv, testServer := newRelay(t)
	view := newRecordingRenderer()
	listener := dialSession(t, testServer.URL, "room", "listener", client.WithRenderer(view))
	talker := dialSession(t, testServer.URL, "room", "talker")
	waitForMembers(t, srv, "room", 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = listener.Receive(ctx) }()

	done := make(chan error, 1)
	go func() { done <- talker.Run(ctx, strings.NewReader("one\n\n   \ntwo\n")) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after EOF")
	}
	assert.False(t, talker.IsOpen())

	assert.Len(t, view.next(t), 1)
	frame := view.next(t)
	require.Len(t, frame, 2)
	assert.Equal(t, "one", frame[0].GetText())
	assert.Equal(t, "two", frame[1].GetText())
	waitForMembers(t, srv, "room", 1)
}

// TestSessionRunEndsWhenServerCloses verifies that Run returns after a
// server-side close even though input is still open.
func TestSessionRunEndsWhenServerCloses(t *testing.T) {
	srv, testServer := newRelay(t)
	session := dialSession(t, testServer.URL, "room", "alice")
	waitForMembers(t, srv, "room", 1)

	input, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })

	done := make(chan error, 1)
	go func() { done <- session.Run(context.Background(), input) }()

	require.NoError(t, srv.CloseConnections(waitTimeout))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return after the server closed")
	}
	assert.Equal(t, "server shutting down", session.CloseReason())
}

// TestSessionRunHonorsContext verifies that cancelling the context ends Run.
func TestSessionRunHonorsContext(t *testing.T) {
	_, testServer := newRelay(t)
	session := dialSession(t, testServer.URL, "room", "alice")

	input, writer := io.Pipe()
	t.Cleanup(func() { _ = writer.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var runErr error
	go func() {
		defer wg.Done()
		runErr = session.Run(ctx, input)
	}()

	cancel()
	wg.Wait()
	assert.NoError(t, runErr)
	assert.False(t, session.IsOpen())
}
