package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// clearEnv blanks every variable Load reads so the host environment does
// not leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "DATABASE_URL", "SQLITE_PATH", "API_TOKEN", "LOG_LEVEL", "LOG_FORMAT",
		"ALLOWED_ORIGINS", "CATEGORY_PALETTE", "TRACKPAY_API_URL", "TRACKPAY_TOKEN", "HTTP_TIMEOUT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 8080, cfg.Port)
		require.Equal(t, "trackpay.db", cfg.SQLitePath)
		require.Equal(t, "info", cfg.LogLevel)
		require.Equal(t, "console", cfg.LogFormat)
		require.Equal(t, 10*time.Second, cfg.HTTPTimeout)
		require.False(t, cfg.UsePostgres())
	})

	t.Run("loads all config from env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "3000")
		t.Setenv("DATABASE_URL", "postgres://localhost/trackpay")
		t.Setenv("API_TOKEN", "secret")
		t.Setenv("LOG_LEVEL", "debug")
		t.Setenv("LOG_FORMAT", "json")
		t.Setenv("TRACKPAY_API_URL", "https://api.example.com")
		t.Setenv("HTTP_TIMEOUT", "3s")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, 3000, cfg.Port)
		require.True(t, cfg.UsePostgres())
		require.Equal(t, "secret", cfg.APIToken)
		require.Equal(t, "debug", cfg.LogLevel)
		require.Equal(t, "json", cfg.LogFormat)
		require.Equal(t, "https://api.example.com", cfg.RemoteURL)
		require.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	})

	t.Run("parses allowed origins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ALLOWED_ORIGINS", " https://a.example.com ,,https://b.example.com,")

		cfg, err := Load()
		require.NoError(t, err)
		require.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.AllowedOrigins)
	})

	t.Run("postgresql scheme selects postgres", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("DATABASE_URL", "postgresql://localhost/trackpay")

		cfg, err := Load()
		require.NoError(t, err)
		require.True(t, cfg.UsePostgres())
	})
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"non numeric port":  {"PORT", "eighty"},
		"port out of range": {"PORT", "70000"},
		"bad timeout":       {"HTTP_TIMEOUT", "soon"},
		"negative timeout":  {"HTTP_TIMEOUT", "-1s"},
		"bad level":         {"LOG_LEVEL", "verbose"},
		"bad format":        {"LOG_FORMAT", "xml"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])

			_, err := Load()
			require.Error(t, err)
			require.Contains(t, err.Error(), kv[0])
		})
	}
}
