/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the reservation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Start the background sweeper
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: reservations.db)
           Use ":memory:" for in-memory database
  -sweep   Sweep interval for expiry/maintenance checks (default: 15m)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the sweeper
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/hospital.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Sweep every minute
  ./server -sweep=1m

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/reservation-engine/api"
	"github.com/warp/reservation-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "reservations.db", "SQLite database path")
	sweepEvery := flag.Duration("sweep", 15*time.Minute, "expiry/maintenance sweep interval")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	router := api.NewRouter(handler)

	// Background expiry/maintenance sweeper
	sweeper := api.NewSweeper(handler, log)
	sweeper.CheckInterval = *sweepEvery
	sweeper.Start()
	defer sweeper.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", *port).Str("db", *dbPath).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
