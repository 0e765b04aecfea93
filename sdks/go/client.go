package firewall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Client is the semantic firewall SDK client. It sends chat messages to a
// running semantic-firewall instance's POST /api/chat endpoint and surfaces
// blocked messages as a typed error, so callers can route around them
// without special-casing HTTP status codes.
type Client struct {
	serverAddr string
	apiKey     string
	failMode   string
	timeout    time.Duration
	httpClient *http.Client
	userID     string

	logger *slog.Logger
}

// NewClient creates a new semantic firewall SDK client.
// It reads configuration from FIREWALL_SDK_* environment variables by
// default. Options can be used to override the defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		serverAddr: os.Getenv("FIREWALL_SDK_SERVER_ADDR"),
		apiKey:     os.Getenv("FIREWALL_SDK_API_KEY"),
		failMode:   envOrDefault("FIREWALL_SDK_FAIL_MODE", "open"),
		timeout:    parseDurationEnv("FIREWALL_SDK_TIMEOUT", 10*time.Second),
		userID:     os.Getenv("FIREWALL_SDK_USER_ID"),
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{
			Timeout: c.timeout,
		}
	}

	return c
}

// Chat sends req to the firewall's POST /api/chat endpoint and returns its
// decision and, if allowed, the backend's reply. If the firewall blocked the
// message, Chat returns the response alongside a *BlockedError so callers
// can distinguish a block from a transport failure with errors.As while
// still inspecting the full decision on resp.
//
// On server unreachable: with FailMode "open" (the default), Chat returns a
// synthetic allow response with Blocked=false and Reason set to note the
// fail-open; with FailMode "closed", it returns a *ServerUnreachableError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/chat", req, &resp)
	if err != nil {
		if isConnectionError(err) {
			if c.failMode == "closed" {
				return nil, &ServerUnreachableError{Cause: err}
			}
			c.logger.Warn("semantic firewall unreachable, failing open",
				"server_addr", c.serverAddr,
				"error", err,
			)
			return &ChatResponse{
				RequestID: req.RequestID,
				Blocked:   false,
				Reason:    "server unreachable, fail-open",
			}, nil
		}
		return nil, err
	}

	if resp.Blocked {
		return &resp, &BlockedError{
			Reason:      resp.Reason,
			MatchedRule: resp.Policy.MatchedRule,
			RequestID:   resp.RequestID,
		}
	}

	return &resp, nil
}

// StartBenchmark starts a benchmark run against req.Dataset/req.Split and
// returns the created run.
func (c *Client) StartBenchmark(ctx context.Context, req BenchmarkStartRequest) (*BenchmarkRun, error) {
	var run BenchmarkRun
	if err := c.doRequest(ctx, http.MethodPost, "/api/benchmarks/start", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// BenchmarkRun fetches the current status of a benchmark run by ID.
func (c *Client) BenchmarkRun(ctx context.Context, runID string) (*BenchmarkRun, error) {
	var run BenchmarkRun
	path := fmt.Sprintf("/api/benchmarks/%s", runID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// BenchmarkMetrics fetches the accuracy/latency metrics for a completed
// benchmark run.
func (c *Client) BenchmarkMetrics(ctx context.Context, runID string) (*BenchmarkMetrics, error) {
	var m BenchmarkMetrics
	path := fmt.Sprintf("/api/benchmarks/%s/metrics", runID)
	if err := c.doRequest(ctx, http.MethodGet, path, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// doRequest performs an HTTP request against the firewall server.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, result any) error {
	url := strings.TrimRight(c.serverAddr, "/") + path

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.userID != "" {
		httpReq.Header.Set("X-User-ID", c.userID)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return &FirewallError{
			Code: fmt.Sprintf("HTTP_%d", httpResp.StatusCode),
			Err:  fmt.Errorf("server returned %d: %s", httpResp.StatusCode, string(respBody)),
		}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// isConnectionError determines if an error is a connection-level error
// (server unreachable, connection refused, timeout, etc.) rather than an
// HTTP-level error response.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var fwErr *FirewallError
	if errors.As(err, &fwErr) {
		return false
	}

	// http.Client.Do reports connection errors (DNS resolution, connection
	// refused, TLS handshake, timeouts) as *url.Error; body read and
	// decode errors are not connection errors.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Helper functions for env var parsing.

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func parseDurationEnv(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return defaultVal
}
