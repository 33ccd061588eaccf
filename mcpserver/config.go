package mcpserver

import (
	"net"
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/go-playground/validator/v10"
)

// Environment variables read by LoadConfig.
const (
	EnvPort          = "PORT"
	EnvHost          = "HOST"
	EnvEndpoint      = "MCP_ENDPOINT"
	EnvFinanceAPIURL = "FINANCE_API_URL"
)

// Defaults applied by LoadConfig.
const (
	DefaultName          = "Finance Tools"
	DefaultHost          = "0.0.0.0"
	DefaultPort          = 8080
	DefaultEndpoint      = "/mcp"
	DefaultFinanceAPIURL = "https://back-aprofunda-chat-despesa.onrender.com"
)

// Version is set at build time.
var Version = "0.1.0"

// Config of the tool server.
type Config struct {
	Name          string `json:"name" yaml:"name" validate:"required"`
	Version       string `json:"version" yaml:"version"`
	Host          string `json:"host" yaml:"host"`
	Port          int    `json:"port" yaml:"port" validate:"min=1,max=65535"`
	Endpoint      string `json:"endpoint" yaml:"endpoint" validate:"required,startswith=/"`
	FinanceAPIURL string `json:"finance_api_url" yaml:"finance_api_url" validate:"required,url"`
}

// LoadConfig returns the config from the environment.
func LoadConfig() (*Config, error) {
	port := DefaultPort
	if s := os.Getenv(EnvPort); s != "" {
		p, err := strconv.Atoi(s)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s: %q", EnvPort, s)
		}
		port = p
	}

	cfg := &Config{
		Name:          DefaultName,
		Version:       Version,
		Host:          values.StringsCoalesce(os.Getenv(EnvHost), DefaultHost),
		Port:          port,
		Endpoint:      values.StringsCoalesce(os.Getenv(EnvEndpoint), DefaultEndpoint),
		FinanceAPIURL: values.StringsCoalesce(os.Getenv(EnvFinanceAPIURL), DefaultFinanceAPIURL),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the config is not valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid server config")
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
