// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
)

// Config holds everything the service binary needs to start.
type Config struct {
	// DBPath is the SQLite file shared by the ledger and the history log.
	DBPath string `env:"CLANFORGE_DB" envDefault:"data/clanforge.db"`
	// Port is the HTTP API listen port.
	Port int `env:"CLANFORGE_PORT" envDefault:"8080"`
	// AdminKey is the bearer token for mutating endpoints. Empty disables them.
	AdminKey string `env:"CLANFORGE_ADMIN_KEY"`
	// RandomOrgKey enables the pooled random.org entropy source.
	RandomOrgKey string `env:"RANDOM_ORG_KEY"`
	// CatalogPath overrides the seed clan catalog with a JSON file.
	CatalogPath string `env:"CLANFORGE_CLANS_FILE"`
	// ModifiersPath overrides the seed personality table with a JSON file.
	ModifiersPath string `env:"CLANFORGE_MODIFIERS_FILE"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"CLANFORGE_LOG_LEVEL" envDefault:"info"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured level name to a slog.Level, defaulting to
// Info for unknown names.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
