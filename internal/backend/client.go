// Package backend is the HTTP client for the casavox backend: ephemeral
// token minting, remote session configuration, and proxied tool execution.
//
// The backend owns all secrets; this client only ever handles short-lived
// per-session credentials.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 15 * time.Second

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client. Primarily used in
// tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout. Default: 15s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// Client talks to the casavox backend REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a backend client for baseURL. apiKey may be empty when the
// backend does not require client authentication.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("backend: baseURL must not be empty")
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Ping probes backend reachability. Used by the readiness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.doJSON(ctx, "GET", "/realtime/config", nil, nil)
}

// errorEnvelope is the backend's error body shape. The message may live at
// the top level or nested one deep under "error".
type errorEnvelope struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Error   *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// flatten returns the innermost non-empty message and code.
func (e errorEnvelope) flatten() (string, string) {
	msg, code := e.Message, e.Code
	if e.Error != nil && e.Error.Message != "" {
		msg, code = e.Error.Message, e.Error.Code
	}
	return msg, code
}

// doJSON performs one JSON request/response round trip. A nil body sends a
// bodyless request; a nil out discards the response body.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("backend: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("backend: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil {
			if msg, code := env.flatten(); msg != "" {
				if code != "" {
					return fmt.Errorf("backend: %s %s: %s (code=%s)", method, path, msg, code)
				}
				return fmt.Errorf("backend: %s %s: %s", method, path, msg)
			}
		}
		return fmt.Errorf("backend: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("backend: decode response: %w", err)
	}
	return nil
}
