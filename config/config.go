// Package config provides application configuration loading from environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the server and the settle CLI.
type Config struct {
	Port        int
	DatabaseURL string
	SQLitePath  string
	APIToken    string

	LogLevel  string
	LogFormat string

	AllowedOrigins []string
	PalettePath    string

	// Remote API used by cmd/settle.
	RemoteURL   string
	RemoteToken string
	HTTPTimeout time.Duration
}

// Load reads configuration from environment variables. A .env file in the
// working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        8080,
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  envOr("SQLITE_PATH", "trackpay.db"),
		APIToken:    os.Getenv("API_TOKEN"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "console"),
		PalettePath: os.Getenv("CATEGORY_PALETTE"),
		RemoteURL:   envOr("TRACKPAY_API_URL", "http://localhost:8080"),
		RemoteToken: os.Getenv("TRACKPAY_TOKEN"),
		HTTPTimeout: 10 * time.Second,
	}

	var errs []string

	if portStr := os.Getenv("PORT"); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("PORT %q is not a number", portStr))
		} else {
			cfg.Port = p
		}
	}

	if timeoutStr := os.Getenv("HTTP_TIMEOUT"); timeoutStr != "" {
		d, err := time.ParseDuration(timeoutStr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("HTTP_TIMEOUT %q is not a duration", timeoutStr))
		} else {
			cfg.HTTPTimeout = d
		}
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for origin := range strings.SplitSeq(origins, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "" {
				continue
			}
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks ranges and enumerations.
func (c *Config) validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error", "disabled":
	default:
		errs = append(errs, "LOG_LEVEL must be one of debug, info, warn, error, disabled")
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		errs = append(errs, "LOG_FORMAT must be console or json")
	}

	if c.HTTPTimeout <= 0 {
		errs = append(errs, "HTTP_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// UsePostgres reports whether DatabaseURL selects the PostgreSQL store.
func (c *Config) UsePostgres() bool {
	return strings.HasPrefix(c.DatabaseURL, "postgres://") ||
		strings.HasPrefix(c.DatabaseURL, "postgresql://")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
