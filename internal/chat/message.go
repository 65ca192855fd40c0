// Package chat defines the JSON message format exchanged between the relay
// server and its clients.
package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a payload is not a JSON object.
	ErrMalformed = errors.New("chat: malformed message")
	// ErrEmpty is returned for a literal null payload.
	ErrEmpty = errors.New("chat: empty message")
)

// Message is a single chat line. Every field is optional on the wire; a nil
// field decodes from an absent or null value and encodes as null.
type Message struct {
	RoomID   *string `json:"roomId"`
	UserName *string `json:"userName"`
	Text     *string `json:"text"`
}

// NewMessage builds a Message with all three fields present.
func NewMessage(roomID, userName, text string) Message {
	return Message{
		RoomID:   &roomID,
		UserName: &userName,
		Text:     &text,
	}
}

// GetRoomID returns the room id or "" when absent.
func (m Message) GetRoomID() string { return deref(m.RoomID) }

// GetUserName returns the user name or "" when absent.
func (m Message) GetUserName() string { return deref(m.UserName) }

// GetText returns the text or "" when absent.
func (m Message) GetText() string { return deref(m.Text) }

// WithRoomID returns a copy of m bound to roomID. The receiver is left
// untouched.
func (m Message) WithRoomID(roomID string) Message {
	m.RoomID = &roomID
	return m
}

// Encode serializes m into its wire form.
func Encode(m Message) ([]byte, error) {
	return json.Marshal(m)
}

// Decode parses a wire payload. Unknown fields are ignored.
func Decode(data []byte) (Message, error) {
	var m Message
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return m, ErrEmpty
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return m, fmt.Errorf("%w: expected JSON object", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return m, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
