// Package mcpclient exposes the tools of a remote MCP server as local tools.
package mcpclient

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	mcp "github.com/metoro-io/mcp-golang"
	mcphttp "github.com/metoro-io/mcp-golang/transport/http"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "mcpclient")

// DefaultEndpoint is used when the server URL has no path.
const DefaultEndpoint = "/mcp"

// Client is the subset of the MCP client used by the toolset.
type Client interface {
	ListTools(ctx context.Context, cursor *string) (*mcp.ToolsResponse, error)
	CallTool(ctx context.Context, name string, arguments any) (*mcp.ToolResponse, error)
}

// Toolset is the collection of remote tools.
type Toolset struct {
	serverURL string
	tools     []tools.ITool
}

// NewToolset connects to the MCP server at serverURL,
// for example http://localhost:8080/mcp, and lists its tools.
func NewToolset(ctx context.Context, serverURL string, opts ...Option) (*Toolset, error) {
	base, endpoint, err := splitURL(serverURL)
	if err != nil {
		return nil, err
	}

	o := newOptions(opts...)
	tr := mcphttp.NewHTTPClientTransport(endpoint).
		WithBaseURL(base).
		WithClient(newHTTPClient(o.transport))
	for k, v := range o.headers {
		tr = tr.WithHeader(k, v)
	}

	client := mcp.NewClient(tr)
	if _, err = client.Initialize(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to initialize MCP session with %s", serverURL)
	}

	return newToolset(ctx, serverURL, client, o)
}

// NewToolsetWithClient lists the tools with an initialized client.
func NewToolsetWithClient(ctx context.Context, client Client, opts ...Option) (*Toolset, error) {
	return newToolset(ctx, "", client, newOptions(opts...))
}

func newOptions(opts ...Option) *options {
	o := &options{
		headers:    make(map[string]string),
		pins:       make(map[string][]pin),
		parameters: make(map[string]any),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func newToolset(ctx context.Context, serverURL string, client Client, o *options) (*Toolset, error) {
	s := &Toolset{serverURL: serverURL}

	seen := make(map[string]bool)
	var cursor *string
	for {
		res, err := client.ListTools(ctx, cursor)
		if err != nil {
			return nil, errors.Wrap(err, "failed to list tools")
		}
		for _, t := range res.Tools {
			if o.filter != nil && !o.filter[t.Name] {
				continue
			}
			if seen[t.Name] {
				continue
			}
			seen[t.Name] = true

			rt := &RemoteTool{
				client:     client,
				name:       t.Name,
				parameters: t.InputSchema,
				pins:       o.pins[t.Name],
			}
			if t.Description != nil {
				rt.description = *t.Description
			}
			if p, ok := o.parameters[t.Name]; ok {
				rt.parameters = p
			}
			s.tools = append(s.tools, rt)
		}
		if res.NextCursor == nil || *res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}

	for name := range o.filter {
		if !seen[name] {
			return nil, errors.Newf("tool %q is not available on the server", name)
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"server", serverURL,
		"tools", s.Names())
	return s, nil
}

// Tools returns the remote tools.
func (s *Toolset) Tools() []tools.ITool {
	return s.tools
}

// Names returns the names of the remote tools.
func (s *Toolset) Names() []string {
	names := make([]string, 0, len(s.tools))
	for _, t := range s.tools {
		names = append(names, t.Name())
	}
	return names
}

// ServerURL returns the URL of the server.
func (s *Toolset) ServerURL() string {
	return s.serverURL
}

// splitURL returns the base URL and the endpoint path.
func splitURL(serverURL string) (string, string, error) {
	u, err := url.Parse(strings.TrimSpace(serverURL))
	if err != nil {
		return "", "", errors.Wrapf(err, "invalid MCP server URL: %q", serverURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", "", errors.Newf("invalid MCP server URL: %q", serverURL)
	}
	endpoint := strings.TrimRight(u.Path, "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return u.Scheme + "://" + u.Host, endpoint, nil
}
