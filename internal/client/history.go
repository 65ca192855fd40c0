package client

import "github.com/Tyrowin/roomchat/internal/chat"

// MessageLog is the ordered record of received messages. It belongs to the
// receive loop and is not safe for concurrent use.
type MessageLog struct {
	limit    int
	messages []chat.Message
}

// NewMessageLog returns a log keeping at most limit messages; limit <= 0
// keeps everything.
func NewMessageLog(limit int) *MessageLog {
	return &MessageLog{limit: limit}
}

// Append adds m, dropping the oldest entry when the log is full.
func (l *MessageLog) Append(m chat.Message) {
	l.messages = append(l.messages, m)
	if l.limit > 0 && len(l.messages) > l.limit {
		l.messages = append(l.messages[:0], l.messages[len(l.messages)-l.limit:]...)
	}
}

// Len returns the number of retained messages.
func (l *MessageLog) Len() int {
	return len(l.messages)
}

// Snapshot returns a copy of the retained messages, oldest first.
func (l *MessageLog) Snapshot() []chat.Message {
	return append([]chat.Message(nil), l.messages...)
}
