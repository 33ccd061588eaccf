// Command finance-mcp serves the expense tools over MCP.
//
// Configuration is read from the environment, and from .env if present:
//
//	PORT             listening port, 8080 by default
//	HOST             listening address, 0.0.0.0 by default
//	MCP_ENDPOINT     path of the MCP endpoint, /mcp by default
//	FINANCE_API_URL  base URL of the finance API
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effective-security/finassist/financeapi"
	"github.com/effective-security/finassist/mcpserver"
	"github.com/effective-security/finassist/tools/expenses"
	"github.com/effective-security/xlog"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/finassist", "finance-mcp")

// Version is set at build time.
var Version = "dev"

func main() {
	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	if err := run(*debug); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %+v\n", err)
		os.Exit(1)
	}
}

func run(debug bool) error {
	// .env is optional
	_ = godotenv.Load()

	xlog.SetFormatter(xlog.NewStringFormatter(os.Stderr))
	if debug {
		xlog.SetGlobalLogLevel(xlog.DEBUG)
	} else {
		xlog.SetGlobalLogLevel(xlog.NOTICE)
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := mcpserver.LoadConfig()
	if err != nil {
		return err
	}
	cfg.Version = Version

	api, err := financeapi.New(cfg.FinanceAPIURL, financeapi.WithUserAgent("finance-mcp/"+Version))
	if err != nil {
		return err
	}

	srv, err := mcpserver.New(cfg, expenses.Tools(api)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.KV(xlog.NOTICE,
		"version", Version,
		"finance_api", cfg.FinanceAPIURL)
	return srv.ListenAndServe(ctx)
}
