package mcpclient

import "net/http"

// Option configures a Toolset.
type Option func(*options)

type pin struct {
	path  string
	value any
}

type options struct {
	headers    map[string]string
	filter     map[string]bool
	pins       map[string][]pin
	parameters map[string]any
	transport  http.RoundTripper
}

// WithHeader sets a header on every request to the server.
func WithHeader(key, value string) Option {
	return func(o *options) {
		o.headers[key] = value
	}
}

// WithToolFilter exposes only the named tools.
// NewToolset fails if any of the names is not served.
func WithToolFilter(names ...string) Option {
	return func(o *options) {
		if o.filter == nil {
			o.filter = make(map[string]bool)
		}
		for _, name := range names {
			o.filter[name] = true
		}
	}
}

// WithPinnedArgument sets the argument at path on every call of the tool,
// overriding the value provided by the caller.
// The path uses the sjson syntax, for example "expense_data.userId".
func WithPinnedArgument(toolName, path string, value any) Option {
	return func(o *options) {
		o.pins[toolName] = append(o.pins[toolName], pin{path: path, value: value})
	}
}

// WithParameters replaces the parameters schema advertised by the server for the tool.
func WithParameters(toolName string, parameters any) Option {
	return func(o *options) {
		o.parameters[toolName] = parameters
	}
}

// WithTransport sets the HTTP transport used to reach the server.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}
