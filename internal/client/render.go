package client

import (
	"bufio"
	"fmt"
	"io"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// Renderer refreshes the display after the message log changes.
type Renderer interface {
	Render(messages []chat.Message)
}

const (
	ansiClear = "\033[H\033[2J"
	ansiGreen = "\033[32m"
	ansiCyan  = "\033[36m"
	ansiReset = "\033[0m"
)

// TerminalRenderer repaints the whole screen with the newest messages that
// fit, then redraws the input prompt on the last row.
type TerminalRenderer struct {
	out      io.Writer
	userName string
	height   int
}

// NewTerminalRenderer renders to out for the local user userName on a screen
// of height rows.
func NewTerminalRenderer(out io.Writer, userName string, height int) *TerminalRenderer {
	if height < 2 {
		height = defaultScreenHeight
	}
	return &TerminalRenderer{out: out, userName: userName, height: height}
}

// Render implements Renderer.
func (r *TerminalRenderer) Render(messages []chat.Message) {
	w := bufio.NewWriter(r.out)
	_, _ = io.WriteString(w, ansiClear)

	start := len(messages) - r.height + 1
	if start < 0 {
		start = 0
	}
	for _, m := range messages[start:] {
		_, _ = io.WriteString(w, r.formatLine(m))
		_, _ = io.WriteString(w, "\n")
	}

	_, _ = fmt.Fprintf(w, "%sYou: %s", ansiCyan, ansiReset)
	_ = w.Flush()
}

func (r *TerminalRenderer) formatLine(m chat.Message) string {
	if m.GetUserName() == r.userName {
		return fmt.Sprintf("%s[You]: %s%s", ansiGreen, m.GetText(), ansiReset)
	}
	return fmt.Sprintf("[%s]: %s", m.GetUserName(), m.GetText())
}
