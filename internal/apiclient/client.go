package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"orbridge/internal/api"
)

var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Client calls the daemon's JSON endpoints.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// New builds a client for the daemon bound at bind. An empty bind yields a
// nil client whose calls return ErrAPIUnavailable.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		http:  &http.Client{Timeout: 30 * time.Second},
		token: strings.TrimSpace(token),
	}, nil
}

// Status fetches GET /api/status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", &status)
	return status, err
}

// Entities fetches GET /api/entities.
func (c *Client) Entities(ctx context.Context) ([]api.Entity, error) {
	var payload api.EntityListResponse
	if err := c.do(ctx, http.MethodGet, "/api/entities", &payload); err != nil {
		return nil, err
	}
	return payload.Entities, nil
}

// Reload asks the daemon to rebuild its entities from the entry store.
func (c *Client) Reload(ctx context.Context) ([]api.Entity, error) {
	var payload api.EntityListResponse
	if err := c.do(ctx, http.MethodPost, "/api/reload", &payload); err != nil {
		return nil, err
	}
	return payload.Entities, nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// StatusError is a non-2xx daemon response.
type StatusError struct {
	StatusCode int
	Body       api.ErrorResponse
}

func (e *StatusError) Error() string {
	if msg := strings.TrimSpace(e.Body.Error); msg != "" {
		return fmt.Sprintf("daemon returned status %d: %s", e.StatusCode, msg)
	}
	return fmt.Sprintf("daemon returned status %d", e.StatusCode)
}

func decodeError(resp *http.Response) error {
	out := &StatusError{StatusCode: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out.Body)
	return out
}

// IsAPIUnavailable reports whether err means no daemon is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
