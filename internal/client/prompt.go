package client

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// RoomOption is the user's choice between creating and joining a room.
type RoomOption string

const (
	OptionCreate RoomOption = "1"
	OptionJoin   RoomOption = "2"
)

// Prompter asks the interactive setup questions. It owns a buffered reader
// that the session's send loop keeps using afterwards, so no typed-ahead
// input is lost.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Input returns the reader positioned after the last answer.
func (p *Prompter) Input() io.Reader {
	return p.in
}

// UserName asks until a non-empty name is entered.
func (p *Prompter) UserName() (string, error) {
	return p.ask("Enter the username: ", "Invalid username, please enter again: ", func(s string) bool {
		return s != ""
	})
}

// RoomOption asks until the answer is exactly "1" or "2".
func (p *Prompter) RoomOption() (RoomOption, error) {
	answer, err := p.ask(
		"Enter an option ('1' for Room Creation or '2' for Joining the Room): ",
		"Invalid option, enter 1 for Creating a Room and 2 for Joining the room: ",
		func(s string) bool {
			return RoomOption(s) == OptionCreate || RoomOption(s) == OptionJoin
		},
	)
	return RoomOption(answer), err
}

// RoomID asks until a non-empty room id is entered.
func (p *Prompter) RoomID() (string, error) {
	return p.ask("Enter the room id: ", "Invalid room id, please enter again: ", func(s string) bool {
		return s != ""
	})
}

func (p *Prompter) ask(question, retry string, valid func(string) bool) (string, error) {
	_, _ = fmt.Fprint(p.out, question)
	for {
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		if valid(line) {
			return line, nil
		}
		_, _ = fmt.Fprint(p.out, retry)
	}
}

// readLine returns the next line without its terminator. A final line with
// no newline is returned before io.EOF.
func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
