package bots

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/okian/tictac/internal/domain/model"
)

// ErrNotFound is returned for records the arbiter does not have yet.
var ErrNotFound = errors.New("not found")

// Client talks to the arbiter's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client

	commands      atomic.Int64
	backpressured atomic.Int64
	failed        atomic.Int64
}

// NewClient creates a client with a request timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type commandBody struct {
	Command model.Kind `json:"command"`
	X       *int       `json:"x,omitempty"`
	Y       *int       `json:"y,omitempty"`
}

// Send submits a command. Backpressure is not an error: the arbiter keeps the
// command and delivers it later.
func (c *Client) Send(ctx context.Context, uid string, cmd model.Command) error {
	body, err := json.Marshal(commandBody{Command: cmd.Kind, X: cmd.X, Y: cmd.Y})
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/commands/"+url.PathEscape(uid), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.commands.Add(1)
	resp, err := c.http.Do(req)
	if err != nil {
		c.failed.Add(1)
		return fmt.Errorf("post command: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusTooManyRequests:
		c.backpressured.Add(1)
		return nil
	}
	c.failed.Add(1)
	return fmt.Errorf("post command: status %d", resp.StatusCode)
}

// PlayerState reads uid's state.
func (c *Client) PlayerState(ctx context.Context, uid string) (model.PlayerState, error) {
	var ps model.PlayerState
	err := c.getJSON(ctx, "/players/"+url.PathEscape(uid), &ps)
	return ps, err
}

// Game reads a game record.
func (c *Client) Game(ctx context.Context, id string) (model.GameRecord, error) {
	var g model.GameRecord
	err := c.getJSON(ctx, "/games/"+url.PathEscape(id), &g)
	return g, err
}

// Healthy checks that the arbiter answers on /healthz.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		return nil
	case http.StatusNotFound:
		return ErrNotFound
	}
	return fmt.Errorf("get %s: status %d", path, resp.StatusCode)
}
