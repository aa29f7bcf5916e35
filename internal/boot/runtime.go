// Package boot resolves runtime settings that deployments override through
// the environment rather than config.toml.
package boot

import (
	"fmt"
	"os"
	"strings"

	"github.com/memohai/relay/internal/config"
)

// Environment variables that take precedence over config.toml.
const (
	EnvHTTPAddr      = "HTTP_ADDR"
	EnvBackendURL    = "RELAY_BACKEND_URL"
	EnvBackendAPIKey = "RELAY_BACKEND_API_KEY"
	EnvStoreDriver   = "RELAY_STORE_DRIVER"
)

// RuntimeConfig holds the listen address and the secrets most often
// injected by the environment.
type RuntimeConfig struct {
	ServerAddr  string
	StoreDriver string
	Backend     config.BackendConfig
}

// ProvideRuntimeConfig builds RuntimeConfig from cfg and applies env overrides.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	return resolve(cfg, os.Getenv)
}

func resolve(cfg config.Config, getenv func(string) string) (*RuntimeConfig, error) {
	ret := &RuntimeConfig{
		ServerAddr:  cfg.Server.Addr,
		StoreDriver: cfg.Store.Driver,
		Backend:     cfg.Backend,
	}
	if value := strings.TrimSpace(getenv(EnvHTTPAddr)); value != "" {
		ret.ServerAddr = value
	}
	if value := strings.TrimSpace(getenv(EnvStoreDriver)); value != "" {
		ret.StoreDriver = value
	}
	if value := strings.TrimSpace(getenv(EnvBackendURL)); value != "" {
		ret.Backend.BaseURL = value
	}
	if value := getenv(EnvBackendAPIKey); value != "" {
		ret.Backend.APIKey = value
	}
	if ret.ServerAddr == "" {
		ret.ServerAddr = config.DefaultHTTPAddr
	}
	if !strings.HasPrefix(ret.Backend.Endpoint(), "http://") && !strings.HasPrefix(ret.Backend.Endpoint(), "https://") {
		return nil, fmt.Errorf("backend url must be http(s): %q", ret.Backend.BaseURL)
	}
	return ret, nil
}
