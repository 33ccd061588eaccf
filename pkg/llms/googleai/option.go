package googleai

import (
	"os"

	"cloud.google.com/go/auth"
	"google.golang.org/genai"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// Options is a set of options for GoogleAI clients.
type Options struct {
	DefaultModel       string
	DefaultMaxTokens   int
	DefaultTemperature float64
	DefaultTopK        int
	DefaultTopP        float64
	HarmThreshold      genai.HarmBlockThreshold
	APIKey             string
	Credentials        *auth.Credentials
	// Project and Location of Vertex AI, the Gemini API is used when Project is empty.
	Project  string
	Location string
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		DefaultModel:       DefaultModel,
		DefaultMaxTokens:   8192,
		DefaultTemperature: 0.2,
		DefaultTopK:        3,
		DefaultTopP:        0.95,
		HarmThreshold:      genai.HarmBlockThresholdBlockOnlyHigh,
	}
}

// EnsureAuthPresent attempts to ensure that the client has authentication information.
// If it does not, it will attempt to use the GOOGLE_API_KEY environment variable.
// Vertex AI clients are not changed.
func (o *Options) EnsureAuthPresent() {
	if o.Project == "" && o.Credentials == nil && o.APIKey == "" {
		if key := os.Getenv("GOOGLE_API_KEY"); key != "" {
			WithAPIKey(key)(o)
		}
	}
}

// Option configures Options.
type Option func(*Options)

// WithAPIKey passes the API KEY (token) to the client.
func WithAPIKey(apiKey string) Option {
	return func(opts *Options) {
		opts.APIKey = apiKey
	}
}

// WithCredentials authenticates API calls with the given credentials.
func WithCredentials(credentials *auth.Credentials) Option {
	return func(opts *Options) {
		if credentials == nil {
			return
		}
		opts.Credentials = credentials
	}
}

// WithVertexAI uses the Vertex AI API of the project in location,
// for example us-central1.
func WithVertexAI(project, location string) Option {
	return func(opts *Options) {
		opts.Project = project
		opts.Location = location
	}
}

// WithDefaultModel passes a default content model name to the client. This
// model name is used if not explicitly provided in specific client invocations.
func WithDefaultModel(defaultModel string) Option {
	return func(opts *Options) {
		if defaultModel != "" {
			opts.DefaultModel = defaultModel
		}
	}
}

// WithDefaultMaxTokens sets the maximum token count for the model.
func WithDefaultMaxTokens(maxTokens int) Option {
	return func(opts *Options) {
		opts.DefaultMaxTokens = maxTokens
	}
}

// WithDefaultTemperature sets the temperature for the model.
func WithDefaultTemperature(defaultTemperature float64) Option {
	return func(opts *Options) {
		opts.DefaultTemperature = defaultTemperature
	}
}

// WithDefaultTopK sets the TopK for the model.
func WithDefaultTopK(defaultTopK int) Option {
	return func(opts *Options) {
		opts.DefaultTopK = defaultTopK
	}
}

// WithDefaultTopP sets the TopP for the model.
func WithDefaultTopP(defaultTopP float64) Option {
	return func(opts *Options) {
		opts.DefaultTopP = defaultTopP
	}
}

// WithHarmThreshold sets the safety/harm setting for the model, potentially
// limiting any harmful content it may generate.
func WithHarmThreshold(ht genai.HarmBlockThreshold) Option {
	return func(opts *Options) {
		opts.HarmThreshold = ht
	}
}
