// Package config loads and exposes application configuration (TOML).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultStoreDriver       = "postgres"
	DefaultSQLitePath        = "data/relay.db"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "relay"
	DefaultPGSSLMode         = "disable"
	DefaultBackendURL        = "http://127.0.0.1:3000"
	DefaultBackendPath       = "/api/chat/external"
	DefaultBackendTimeout    = 30
	DefaultFlushIntervalMS   = 2000
	DefaultRelayConcurrency  = 512
	DefaultRelayQueueSize    = 256
	DefaultOutboundPerSecond = 1.0
	DefaultOutboundBurst     = 3
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig         `toml:"log"`
	Server     ServerConfig      `toml:"server"`
	Store      StoreConfig       `toml:"store"`
	Postgres   PostgresConfig    `toml:"postgres"`
	Backend    BackendConfig     `toml:"backend"`
	Relay      RelayConfig       `toml:"relay"`
	Slack      SlackConfig       `toml:"slack"`
	Discord    DiscordConfig     `toml:"discord"`
	Telegram   TelegramConfig    `toml:"telegram"`
	Workspaces []WorkspaceConfig `toml:"workspaces"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig selects the session/routing store driver ("postgres" or "sqlite").
type StoreConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// BackendConfig points at the streaming completion backend.
type BackendConfig struct {
	BaseURL        string `toml:"base_url"`
	Path           string `toml:"path"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Endpoint returns the full completion URL.
func (c BackendConfig) Endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = DefaultBackendURL
	}
	path := strings.TrimSpace(c.Path)
	if path == "" {
		path = DefaultBackendPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return base + path
}

// Timeout bounds connection setup and response headers, not the stream body.
func (c BackendConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultBackendTimeout * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RelayConfig tunes the background executor and the streaming relay.
type RelayConfig struct {
	FlushIntervalMS   int     `toml:"flush_interval_ms"`
	Concurrency       int     `toml:"concurrency"`
	QueueSize         int     `toml:"queue_size"`
	OutboundPerSecond float64 `toml:"outbound_per_second"`
	OutboundBurst     int     `toml:"outbound_burst"`
	PersistTurns      bool    `toml:"persist_turns"`
	ThinkingText      string  `toml:"thinking_text"`
	InProgressMarker  string  `toml:"in_progress_marker"`
	ApologyText       string  `toml:"apology_text"`
	EmptyResponseText string  `toml:"empty_response_text"`
	NotConfiguredText string  `toml:"not_configured_text"`
}

// FlushInterval returns the minimum spacing between interim updates.
func (c RelayConfig) FlushInterval() time.Duration {
	if c.FlushIntervalMS < 0 {
		return 0
	}
	if c.FlushIntervalMS == 0 {
		return DefaultFlushIntervalMS * time.Millisecond
	}
	return time.Duration(c.FlushIntervalMS) * time.Millisecond
}

// SlackConfig holds the Slack app signing secret and an optional API URL override.
type SlackConfig struct {
	SigningSecret string `toml:"signing_secret"`
	APIURL        string `toml:"api_url"`
}

// DiscordConfig holds the application public key (hex) used for interaction verification.
type DiscordConfig struct {
	PublicKey   string `toml:"public_key"`
	APIEndpoint string `toml:"api_endpoint"`
}

// TelegramConfig holds the webhook secret token and an optional Bot API endpoint override.
type TelegramConfig struct {
	SecretToken string `toml:"secret_token"`
	APIEndpoint string `toml:"api_endpoint"`
}

// WorkspaceConfig seeds one workspace (team, guild or bot) with its credential and routes.
type WorkspaceConfig struct {
	ID       string        `toml:"id"`
	Platform string        `toml:"platform"`
	BotToken string        `toml:"bot_token"`
	Routes   []RouteConfig `toml:"routes"`
}

// RouteConfig maps a command name (or the default flag) to a target bot.
type RouteConfig struct {
	Command string `toml:"command"`
	Default bool   `toml:"default"`
	BotID   string `toml:"bot_id"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Store: StoreConfig{
			Driver:     DefaultStoreDriver,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Backend: BackendConfig{
			BaseURL:        DefaultBackendURL,
			Path:           DefaultBackendPath,
			TimeoutSeconds: DefaultBackendTimeout,
		},
		Relay: RelayConfig{
			FlushIntervalMS:   DefaultFlushIntervalMS,
			Concurrency:       DefaultRelayConcurrency,
			QueueSize:         DefaultRelayQueueSize,
			OutboundPerSecond: DefaultOutboundPerSecond,
			OutboundBurst:     DefaultOutboundBurst,
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}
