package firewall

import (
	"net/http"
	"time"
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithServerAddr sets the semantic firewall's server address.
// If not set, defaults to the FIREWALL_SDK_SERVER_ADDR environment variable.
func WithServerAddr(addr string) Option {
	return func(c *Client) {
		c.serverAddr = addr
	}
}

// WithAPIKey sets the API key for authenticating with the firewall.
// If not set, defaults to the FIREWALL_SDK_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = key
	}
}

// WithFailMode sets the fail mode when the firewall is unreachable.
// Valid values are "open" (forward the message unanalyzed) and "closed"
// (return ErrServerUnreachable). If not set, defaults to the
// FIREWALL_SDK_FAIL_MODE environment variable or "open".
func WithFailMode(mode string) Option {
	return func(c *Client) {
		c.failMode = mode
	}
}

// WithTimeout sets the HTTP request timeout.
// If not set, defaults to the FIREWALL_SDK_TIMEOUT environment variable
// (whole seconds or a Go duration string) or 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets a custom http.Client for making requests.
// This is useful for testing, proxying, or custom transport configurations.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithUserID sets the X-User-ID header sent with every request, for
// servers that key rate limiting or logging off it.
func WithUserID(userID string) Option {
	return func(c *Client) {
		c.userID = userID
	}
}
