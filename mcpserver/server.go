// Package mcpserver serves the finance tools over the MCP streamable HTTP endpoint.
package mcpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/finassist/tools"
	"github.com/effective-security/xlog"
	"github.com/gin-gonic/gin"
	mcp "github.com/metoro-io/mcp-golang"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "mcpserver")

// PathHealth is the liveness endpoint.
const PathHealth = "/healthz"

const shutdownTimeout = 10 * time.Second

// Server is the MCP tool server.
type Server struct {
	cfg       *Config
	transport *Transport
	mcp       *mcp.Server
	router    *gin.Engine
	tools     []string
}

// New returns a server with the tools registered.
func New(cfg *Config, list ...tools.IMCPTool) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		transport: NewTransport(),
	}
	s.mcp = mcp.NewServer(s.transport,
		mcp.WithName(cfg.Name),
		mcp.WithVersion(cfg.Version),
	)

	if err := tools.RegisterMCP(s.mcp, list...); err != nil {
		return nil, err
	}
	for _, tool := range list {
		s.tools = append(s.tools, tool.Name())
	}

	if err := s.mcp.Serve(); err != nil {
		return nil, errors.Wrap(err, "failed to start MCP server")
	}

	s.transport.SetErrorHandler(func(err error) {
		logger.KV(xlog.ERROR, "err", err.Error())
	})

	router := gin.New()
	router.Use(gin.Recovery(), accessLog())
	router.POST(cfg.Endpoint, s.transport.Handler())
	router.GET(PathHealth, s.health)
	s.router = router

	return s, nil
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return s.tools
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.KV(xlog.NOTICE,
			"status", "listening",
			"addr", srv.Addr,
			"endpoint", s.cfg.Endpoint,
			"tools", s.tools)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	logger.KV(xlog.NOTICE, "status", "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shutdown")
	}
	_ = s.transport.Close()
	return nil
}

type healthResponse struct {
	Status  string   `json:"status"`
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Tools   []string `json:"tools"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Name:    s.cfg.Name,
		Version: s.cfg.Version,
		Tools:   s.tools,
	})
}

func accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.ContextKV(c.Request.Context(), xlog.DEBUG,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(started).String())
	}
}
