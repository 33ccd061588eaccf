package mcpserver_test

import (
	"testing"

	"github.com/effective-security/finassist/mcpserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv(mcpserver.EnvPort, "")
	t.Setenv(mcpserver.EnvHost, "")
	t.Setenv(mcpserver.EnvEndpoint, "")
	t.Setenv(mcpserver.EnvFinanceAPIURL, "")

	cfg, err := mcpserver.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, mcpserver.DefaultPort, cfg.Port)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "/mcp", cfg.Endpoint)
	assert.Equal(t, mcpserver.DefaultFinanceAPIURL, cfg.FinanceAPIURL)
	assert.NotEmpty(t, cfg.Name)

	t.Setenv(mcpserver.EnvPort, "9090")
	t.Setenv(mcpserver.EnvHost, "127.0.0.1")
	t.Setenv(mcpserver.EnvFinanceAPIURL, "http://localhost:3000")
	cfg, err = mcpserver.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "http://localhost:3000", cfg.FinanceAPIURL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv(mcpserver.EnvPort, "http")
	_, err := mcpserver.LoadConfig()
	assert.EqualError(t, err, `invalid PORT: "http": strconv.Atoi: parsing "http": invalid syntax`)

	t.Setenv(mcpserver.EnvPort, "70000")
	_, err = mcpserver.LoadConfig()
	assert.Error(t, err)

	t.Setenv(mcpserver.EnvPort, "")
	t.Setenv(mcpserver.EnvEndpoint, "mcp")
	_, err = mcpserver.LoadConfig()
	assert.Error(t, err)

	t.Setenv(mcpserver.EnvEndpoint, "")
	t.Setenv(mcpserver.EnvFinanceAPIURL, "not a url")
	_, err = mcpserver.LoadConfig()
	assert.Error(t, err)
}
