// Package client implements the terminal chat client: server API calls, the
// WebSocket session with its receive and send loops, and screen rendering.
package client

import (
	"errors"
	"os"
	"strconv"
)

// ServerURLEnv names the environment variable holding the server base URL.
const ServerURLEnv = "CONSOLECHAT_SERVERURI"

// ErrNoServerURL is returned when no base URL is configured.
var ErrNoServerURL = errors.New("server URL not configured (set " + ServerURLEnv + ")")

// Config holds the client settings.
type Config struct {
	ServerURL string
	// HistoryLimit caps the local message log. Zero keeps everything.
	HistoryLimit int
	// ScreenHeight is the number of terminal rows the renderer may use.
	ScreenHeight int
}

const defaultScreenHeight = 24

// LoadConfig reads the client configuration from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{
		ServerURL:    os.Getenv(ServerURLEnv),
		ScreenHeight: defaultScreenHeight,
	}
	if cfg.ServerURL == "" {
		return cfg, ErrNoServerURL
	}
	if v := os.Getenv("CONSOLECHAT_HISTORY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.HistoryLimit = n
		}
	}
	if v := os.Getenv("LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			cfg.ScreenHeight = n
		}
	}
	return cfg, nil
}
