package financeapi

import (
	"net/http"
	"time"
)

// Option configures the Client.
type Option func(*Client)

// WithTransport sets the RoundTripper used by every call.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}

// WithHTTPClient uses the transport and timeout of the provided client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc == nil {
			return
		}
		c.transport = hc.Transport
		c.timeout = hc.Timeout
	}
}

// WithTimeout sets the overall timeout of a single call,
// zero means no timeout besides the caller's context.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}
