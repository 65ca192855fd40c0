package client

import (
	"context"
	"fmt"
	"io"
)

// App runs the interactive client: health check, setup prompts, room
// creation or selection, then the chat session.
type App struct {
	cfg Config
	api *API
	in  *Prompter
	out io.Writer
}

// NewApp builds an App reading from in and writing to out.
func NewApp(cfg Config, in io.Reader, out io.Writer) (*App, error) {
	api, err := NewAPI(cfg.ServerURL)
	if err != nil {
		return nil, err
	}
	return &App{cfg: cfg, api: api, in: NewPrompter(in, out), out: out}, nil
}

// Run executes the whole client flow and returns when the session ends.
func (a *App) Run(ctx context.Context) error {
	// The health check is advisory; the client continues either way.
	if healthy, err := a.api.CheckHealth(ctx); !healthy {
		a.printf("Unable to connect to the server. Please try again later.\n")
		if err != nil {
			a.printf("(%v)\n", err)
		}
	}

	userName, err := a.in.UserName()
	if err != nil {
		return fmt.Errorf("read username: %w", err)
	}

	roomID, err := a.chooseRoom(ctx)
	if err != nil {
		return err
	}

	chatURL, err := a.api.ChatURL(roomID)
	if err != nil {
		return err
	}

	a.printf("\n====================================\n")
	a.printf("Connecting to Room: %s\n", roomID)

	session, err := Dial(ctx, chatURL, roomID, userName,
		WithRenderer(NewTerminalRenderer(a.out, userName, a.cfg.ScreenHeight)),
		WithHistoryLimit(a.cfg.HistoryLimit),
		WithStatusOutput(a.out),
	)
	if err != nil {
		return err
	}

	a.printf("Connected! Start chatting...\n")
	a.printf("====================================\n\n")

	runErr := session.Run(ctx, a.in.Input())
	if reason := session.CloseReason(); reason != "" {
		a.printf("\nDisconnected: %s\n", reason)
	} else {
		a.printf("\nDisconnected.\n")
	}
	return runErr
}

func (a *App) chooseRoom(ctx context.Context) (string, error) {
	option, err := a.in.RoomOption()
	if err != nil {
		return "", fmt.Errorf("read room option: %w", err)
	}

	if option == OptionCreate {
		roomID, err := a.api.CreateRoom(ctx)
		if err != nil {
			a.printf("An error occurred while creating the room: %v\n", err)
			return "", err
		}
		return roomID, nil
	}

	roomID, err := a.in.RoomID()
	if err != nil {
		return "", fmt.Errorf("read room id: %w", err)
	}
	return roomID, nil
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}
