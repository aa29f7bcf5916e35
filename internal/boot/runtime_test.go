package boot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memohai/relay/internal/config"
)

func TestResolveAppliesEnvOverrides(t *testing.T) {
	t.Parallel()
	cfg := config.Config{
		Server:  config.ServerConfig{Addr: ":9000"},
		Store:   config.StoreConfig{Driver: "postgres"},
		Backend: config.BackendConfig{BaseURL: "http://backend:3000", APIKey: "from-file"},
	}
	env := map[string]string{
		EnvHTTPAddr:      ":8181",
		EnvStoreDriver:   "sqlite",
		EnvBackendURL:    "https://chat.example.com",
		EnvBackendAPIKey: "from-env",
	}

	rc, err := resolve(cfg, func(k string) string { return env[k] })
	require.NoError(t, err)
	assert.Equal(t, ":8181", rc.ServerAddr)
	assert.Equal(t, "sqlite", rc.StoreDriver)
	assert.Equal(t, "https://chat.example.com/api/chat/external", rc.Backend.Endpoint())
	assert.Equal(t, "from-env", rc.Backend.APIKey)
}

func TestResolveDefaults(t *testing.T) {
	t.Parallel()
	rc, err := resolve(config.Config{}, func(string) string { return "" })
	require.NoError(t, err)
	assert.Equal(t, config.DefaultHTTPAddr, rc.ServerAddr)
	assert.Equal(t, config.DefaultBackendURL+config.DefaultBackendPath, rc.Backend.Endpoint())
}

func TestResolveRejectsNonHTTPBackend(t *testing.T) {
	t.Parallel()
	_, err := resolve(config.Config{Backend: config.BackendConfig{BaseURL: "ftp://x"}}, func(string) string { return "" })
	assert.Error(t, err)
}
