// Package httpbackend is the outbound client that calls the upstream LLM
// backend's chat endpoint. Grounded on the teacher's HTTPClient
// (internal/adapter/outbound/mcp/http_client.go): same TLS-1.2-minimum
// transport, connection pooling, and bounded response reads, simplified
// from MCP's bidirectional pipe transport to a single request/response
// call since the backend here is one JSON endpoint, not a JSON-RPC stream.
package httpbackend

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dannycabezas/semantic-firewall/internal/domain/firewallerr"
)

// maxResponseBodySize bounds how much of the backend's reply is read,
// preventing OOM from a misbehaving or compromised backend.
const maxResponseBodySize = 10 * 1024 * 1024

// ChatRequest is the payload sent to the backend's chat endpoint.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the backend's reply.
type ChatResponse struct {
	Response string `json:"response"`
}

// Client calls the upstream backend's POST /api/chat endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client at construction.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the request timeout, overriding the 30s default of
// spec.md §4.7.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) { cl.httpClient.Timeout = d }
}

// NewClient builds a backend client against baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chat sends message to the backend and returns its reply. Any transport,
// status, or decode failure is wrapped as a *firewallerr.BackendError, per
// spec.md §4.7's error mapping (BackendError -> 502).
func (c *Client) Chat(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(ChatRequest{Message: message})
	if err != nil {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("request backend: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("backend status %d", resp.StatusCode)}
	}

	var out ChatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &firewallerr.BackendError{Err: fmt.Errorf("decode response: %w", err)}
	}

	return out.Response, nil
}
