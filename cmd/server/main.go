/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the TrackPay ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from env (and .env)
  2. Parse command-line flags, which override env
  3. Configure the logger
  4. Open PostgreSQL when DATABASE_URL is set, SQLite otherwise
  5. Load the category palette
  6. Configure HTTP router and start with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: PORT or 8080)
  -db      SQLite database path (default: SQLITE_PATH or trackpay.db)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/trackpay.db"

  # Run against PostgreSQL
  DATABASE_URL=postgres://localhost/trackpay ./server

  # Require a bearer token
  API_TOKEN=secret ./server -port=3000

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Stores
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/trackpay/api"
	"github.com/warp/trackpay/config"
	"github.com/warp/trackpay/factory"
	"github.com/warp/trackpay/ledger"
	"github.com/warp/trackpay/logger"
	"github.com/warp/trackpay/store/postgres"
	"github.com/warp/trackpay/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Flags
	port := flag.Int("port", cfg.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.SQLitePath, "SQLite database path (ignored when DATABASE_URL is set)")
	flag.Parse()

	logger.SetFormat(cfg.LogFormat)
	logger.SetLevel(cfg.LogLevel)

	// Initialize store
	store, err := openStore(context.Background(), cfg, *dbPath)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer store.Close()

	palette, err := factory.LoadPalette(cfg.PalettePath)
	if err != nil {
		logger.Log.Fatal().Err(err).Str("path", cfg.PalettePath).Msg("Failed to load category palette")
	}

	// Initialize handler and router
	handler := api.NewHandler(store, palette)
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		APIToken:       cfg.APIToken,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Log.Info().
			Int("port", *port).
			Bool("auth", cfg.APIToken != "").
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server stopped")
}

func openStore(ctx context.Context, cfg *config.Config, dbPath string) (ledger.Store, error) {
	if cfg.UsePostgres() {
		logger.Log.Info().Msg("Using PostgreSQL store")
		store, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	logger.Log.Info().Str("path", dbPath).Msg("Using SQLite store")
	store, err := sqlite.New(dbPath)
	if err != nil {
		return nil, err
	}
	return store, nil
}
