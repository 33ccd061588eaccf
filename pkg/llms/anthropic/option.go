package anthropic

import (
	"time"
)

const (
	TokenEnvVarName = "ANTHROPIC_API_KEY" //nolint:gosec

	DefaultBaseURL = "https://api.anthropic.com"
	DefaultTimeout = 5 * time.Minute
)

// Options for the Anthropic client.
type Options struct {
	Token      string
	Model      string
	BaseURL    string
	MaxRetries int
}

// Option configures Options.
type Option func(*Options)

// WithToken passes the Anthropic API token to the client. If not set, the token
// is read from the ANTHROPIC_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *Options) {
		opts.Token = token
	}
}

// WithModel passes the Anthropic model to the client.
func WithModel(model string) Option {
	return func(opts *Options) {
		opts.Model = model
	}
}

// WithBaseURL passes the Anthropic base URL to the client.
func WithBaseURL(baseURL string) Option {
	return func(opts *Options) {
		opts.BaseURL = baseURL
	}
}

// WithMaxRetries sets the SDK retries on transient errors.
func WithMaxRetries(n int) Option {
	return func(opts *Options) {
		opts.MaxRetries = n
	}
}
