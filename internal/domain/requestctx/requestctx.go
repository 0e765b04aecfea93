// Package requestctx builds the per-request context threaded through the
// analysis pipeline. It is created once per inbound request and passed
// immutably down the call chain.
package requestctx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RequestContext carries request-scoped metadata used both to condition
// embedding-based detectors and to populate the standardized event.
type RequestContext struct {
	RequestID          string         `json:"request_id"`
	Timestamp          time.Time      `json:"timestamp"`
	UserID             string         `json:"user_id"`
	SessionID          string         `json:"session_id"`
	TenantID           string         `json:"tenant_id"`
	Endpoint           string         `json:"endpoint"`
	Device             string         `json:"device"`
	RateLimitRemaining int            `json:"rate_limit_remaining"`
	Temperature        float64        `json:"temperature"`
	MaxTokens          int            `json:"max_tokens"`
	TurnCount          int            `json:"turn_count"`
	Custom             map[string]any `json:"custom,omitempty"`
}

// Defaults mirror the original source's header-extraction defaults.
const (
	DefaultTenantID           = "default"
	DefaultTemperature        = 0.7
	DefaultMaxTokens          = 1024
	DefaultRateLimitRemaining = 100
)

// FromHTTPHeaders builds a RequestContext from the documented request
// headers, generating a fresh request ID. Each header has its own small
// extractor, following the original's decomposition into discrete
// extractor functions (see SPEC_FULL.md §7) rather than one monolithic
// parse.
func FromHTTPHeaders(h http.Header, tenantID, endpoint string) *RequestContext {
	if tenantID == "" {
		tenantID = DefaultTenantID
	}
	return &RequestContext{
		RequestID:          uuid.NewString(),
		Timestamp:          time.Now().UTC(),
		UserID:             extractUserID(h),
		SessionID:          extractSessionID(h),
		TenantID:           tenantID,
		Endpoint:           endpoint,
		Device:             extractDevice(h),
		RateLimitRemaining: extractRateLimit(h),
		Temperature:        extractTemperature(h),
		MaxTokens:          extractMaxTokens(h),
		TurnCount:          extractTurnCount(h),
	}
}

func extractUserID(h http.Header) string {
	if v := h.Get("X-User-ID"); v != "" {
		return v
	}
	return "anonymous"
}

func extractSessionID(h http.Header) string {
	if v := h.Get("X-Session-ID"); v != "" {
		return v
	}
	return uuid.NewString()
}

func extractDevice(h http.Header) string {
	if v := h.Get("User-Agent"); v != "" {
		return v
	}
	return "unknown"
}

func extractRateLimit(h http.Header) int {
	if v := h.Get("X-Rate-Limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return DefaultRateLimitRemaining
}

func extractTemperature(h http.Header) float64 {
	if v := h.Get("X-Temperature"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return DefaultTemperature
}

func extractMaxTokens(h http.Header) int {
	if v := h.Get("X-Max-Tokens"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return DefaultMaxTokens
}

func extractTurnCount(h http.Header) int {
	if v := h.Get("X-Turn-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
