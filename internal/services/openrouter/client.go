package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the root of the OpenRouter REST API.
	DefaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 8 << 20
)

// Config captures the runtime settings required to talk to OpenRouter.
type Config struct {
	APIKey         string
	BaseURL        string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client wraps the OpenRouter chat completion, model catalog, and key APIs.
// It performs exactly one HTTP exchange per call; retry policy belongs to the caller.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs an OpenRouter client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Referer:        strings.TrimSpace(cfg.Referer),
			Title:          strings.TrimSpace(cfg.Title),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.cfg.BaseURL == "" {
		client.cfg.BaseURL = DefaultBaseURL
	}
	return client
}

// ChatCompletion issues a single chat completion request. Non-2xx responses and
// error objects embedded in 2xx bodies are returned as *StatusError; network
// failures are returned as *TransportError.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Model) == "" {
		return nil, fmt.Errorf("openrouter chat: model required")
	}
	body, err := c.do(ctx, http.MethodPost, "chat/completions", req)
	if err != nil {
		return nil, err
	}
	var completion ChatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, fmt.Errorf("openrouter chat: decode response: %w (response_snippet=%s)", err, Snippet(string(body)))
	}
	if completion.Error != nil {
		return nil, embeddedStatusError(completion.Error, body)
	}
	completion.Raw = body
	return &completion, nil
}

// ListModels fetches the model catalog.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	body, err := c.do(ctx, http.MethodGet, "models", nil)
	if err != nil {
		return nil, err
	}
	var payload struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("openrouter models: decode response: %w", err)
	}
	return payload.Data, nil
}

// CheckKey validates the configured API key and returns its usage metadata.
func (c *Client) CheckKey(ctx context.Context) (KeyInfo, error) {
	var empty KeyInfo
	body, err := c.do(ctx, http.MethodGet, "key", nil)
	if err != nil {
		return empty, err
	}
	var payload struct {
		Data KeyInfo `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return empty, fmt.Errorf("openrouter key: decode response: %w", err)
	}
	return payload.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return nil, fmt.Errorf("openrouter request: build url: %w", err)
	}
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("openrouter request: encode body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("openrouter request: new request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: method + " " + path, Timeout: c.timeoutDuration(), Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{Op: "read " + path, Timeout: c.timeoutDuration(), Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return body, newStatusError(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}
	return body, nil
}

func (c *Client) timeoutDuration() time.Duration {
	if c == nil || c.httpClient == nil {
		return defaultHTTPTimeout
	}
	if c.httpClient.Timeout <= 0 {
		return defaultHTTPTimeout
	}
	return c.httpClient.Timeout
}
