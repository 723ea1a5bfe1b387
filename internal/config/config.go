// Package config loads gateway configuration from environment variables,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all environment-based configuration for the gateway.
type Config struct {
	// Meta app credentials for the interactive OAuth flow. AppSecret is
	// optional; without it tokens stay short-lived.
	MetaAppID     string `env:"META_APP_ID"`
	MetaAppSecret string `env:"META_APP_SECRET"`

	// MetaAccessToken is the static fallback credential, lowest in the
	// resolution order.
	MetaAccessToken string `env:"META_ACCESS_TOKEN"`

	// MetaRedirectURI overrides the local callback redirect, for operators
	// running their own redirect endpoint.
	MetaRedirectURI string `env:"META_REDIRECT_URI"`

	// DisableCallbackServer turns off the local OAuth callback listener.
	DisableCallbackServer bool `env:"META_ADS_DISABLE_CALLBACK_SERVER" envDefault:"false"`

	// DisableLoginLink removes the interactive login tool from the MCP
	// surface, for hosted deployments where local OAuth makes no sense.
	DisableLoginLink bool `env:"META_ADS_DISABLE_LOGIN_LINK" envDefault:"false"`

	// Relay service settings. A configured RelayKey makes the relay the
	// process-wide credential source.
	RelayKey  string `env:"PIPEBOARD_API_TOKEN"`
	RelayBase string `env:"PIPEBOARD_API_BASE" envDefault:"https://pipeboard.co"`

	// EnableDuplication turns on the relay-backed duplicate_* tools.
	EnableDuplication bool `env:"META_ADS_ENABLE_DUPLICATION" envDefault:"false"`

	// BootstrapToken gates tenant creation on the admin HTTP surface.
	// Empty disables bootstrap-gated endpoints.
	BootstrapToken string `env:"BOOTSTRAP_TOKEN"`

	// DataDir holds the token cache and the tenant database.
	// Defaults to ~/.meta-ads-mcp.
	DataDir string `env:"META_ADS_DATA_DIR"`

	// ListenAddr is the HTTP bind address for hosted mode.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Environment selects log format: "production" logs JSON.
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determining home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".meta-ads-mcp")
	}
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	cfg.DataDir = abs

	return cfg, nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
