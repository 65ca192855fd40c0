package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// API calls the server's plain HTTP endpoints.
type API struct {
	base *url.URL
	http *http.Client
}

// NewAPI parses baseURL and returns an API client for it.
func NewAPI(baseURL string) (*API, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &API{
		base: base,
		http: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrNoServerURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse server URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse server URL: %q needs a scheme and host", raw)
	}
	return u, nil
}

func (a *API) endpoint(path string) string {
	u := *a.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = ""
	return u.String()
}

// CheckHealth reports whether GET /health answered 2xx with body "healthy".
// Any transport failure is returned alongside false.
func (a *API) CheckHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint("/health"), http.NoBody)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("health check: unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return false, fmt.Errorf("health check: %w", err)
	}
	return strings.EqualFold(strings.TrimSpace(string(body)), "healthy"), nil
}

type createRoomResponse struct {
	RoomID string `json:"roomId"`
}

// CreateRoom asks the server for a new room and returns its id.
func (a *API) CreateRoom(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/room"), http.NoBody)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("create room: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("create room: unexpected status %s", resp.Status)
	}

	var body createRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("create room: decode response: %w", err)
	}
	if body.RoomID == "" {
		return "", errors.New("create room: response carried no room id")
	}
	return body.RoomID, nil
}

// ChatURL builds the WebSocket URL for roomID from the API's base URL.
func (a *API) ChatURL(roomID string) (string, error) {
	return ChatURL(a.base.String(), roomID)
}

// ChatURL rewrites baseURL into the /chat upgrade URL for roomID. https maps
// to wss and http to ws; host and port are kept.
func ChatURL(baseURL, roomID string) (string, error) {
	u, err := parseBaseURL(baseURL)
	if err != nil {
		return "", err
	}

	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported server URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/chat"
	u.RawQuery = url.Values{"roomId": []string{roomID}}.Encode()
	u.Fragment = ""
	return u.String(), nil
}
