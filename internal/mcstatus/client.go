// Package mcstatus fetches Minecraft server status from the mcsrvstat.us API.
//
// The client is stateless request/response: retry policy belongs to callers.
package mcstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultBaseURL = "https://api.mcsrvstat.us/3"

var (
	// ErrUnreachable covers transport failures, timeouts and server errors.
	ErrUnreachable = errors.New("mcstatus: unreachable")
	// ErrMalformed covers responses that cannot be decoded.
	ErrMalformed = errors.New("mcstatus: malformed response")
)

// Snapshot is the subset of the status response the tracker consumes.
type Snapshot struct {
	Online     bool
	Players    int
	MaxPlayers int
	MOTD       string
}

type Client struct {
	baseURL string
	http    *http.Client
}

type Config struct {
	BaseURL string        // default: DefaultBaseURL
	Timeout time.Duration // default: 10s
}

func New(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		http:    &http.Client{Timeout: timeout},
	}
}

// statusResponse mirrors the v3 API fields we read.
type statusResponse struct {
	Online  bool `json:"online"`
	Players struct {
		Online int `json:"online"`
		Max    int `json:"max"`
	} `json:"players"`
	MOTD struct {
		Clean []string `json:"clean"`
	} `json:"motd"`
}

// Fetch returns the current status for the given server address.
func (c *Client) Fetch(ctx context.Context, address string) (Snapshot, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Snapshot{}, fmt.Errorf("%w: empty server address", ErrMalformed)
	}

	u := c.baseURL + "/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return Snapshot{}, fmt.Errorf("%w: http %d", ErrUnreachable, resp.StatusCode)
	}

	var body statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Snapshot{
		Online:     body.Online,
		Players:    body.Players.Online,
		MaxPlayers: body.Players.Max,
		MOTD:       strings.Join(body.MOTD.Clean, "\n"),
	}, nil
}
