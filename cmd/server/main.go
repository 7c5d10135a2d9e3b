/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the expense approval server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (YAML + ENV via cleanenv)
  2. Build logger
  3. Initialize SQLite store
  4. Build currency converter and start the rate refresher
  5. Create expense service and API handler
  6. Optionally seed the demo scenario
  7. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to YAML config (default: $CONFIG_PATH or ./config.yaml)
  -db      Override database.path; ":memory:" for in-memory
  -demo    Seed the demo scenario on startup

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (server.shutdown_timeout)
  3. Stop the rate refresher
  4. Close database connection

EXAMPLES:
  ./server -config=./config.yaml
  ./server -db=":memory:" -demo
  SERVER_PORT=3000 CURRENCY_MODE=strict ./server

SEE ALSO:
  - config/config.go: Settings and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
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

	"github.com/rs/zerolog"

	"github.com/warp/expense-engine/api"
	"github.com/warp/expense-engine/config"
	"github.com/warp/expense-engine/currency"
	"github.com/warp/expense-engine/expense"
	"github.com/warp/expense-engine/logging"
	"github.com/warp/expense-engine/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	demo := flag.Bool("demo", false, "Seed the demo scenario on startup")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	log := logging.New(cfg.Log)
	if err := run(cfg, *demo, log); err != nil {
		log.Error().Err(err).Msg("Server exited")
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup happens before main exits.
func run(cfg *config.Config, demo bool, log zerolog.Logger) error {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database %s: %w", cfg.Database.Path, err)
	}
	defer store.Close()

	var source currency.RateSource = currency.NewStaticSource()
	if cfg.Currency.RatesURL != "" {
		source = currency.NewHTTPSource(cfg.Currency.RatesURL, &http.Client{Timeout: cfg.Currency.RequestTimeout})
	}
	converter := currency.NewConverter(source, currency.Options{
		Base:         cfg.ExpenseRouting().BaseCurrency,
		Mode:         currency.Mode(cfg.Currency.Mode),
		TTL:          cfg.Currency.CacheTTL,
		FetchTimeout: cfg.Currency.RequestTimeout,
		Logger:       log,
	})
	refresher := currency.NewRefresher(converter, cfg.Currency.RefreshInterval, log)
	refresher.Timeout = cfg.Currency.RequestTimeout
	refresher.Start()
	defer refresher.Stop()

	dir := expense.NewUserDirectory(store, log)
	svc := expense.NewService(store, dir, converter, cfg.ExpenseRouting(), log)
	svc.Exhausted = cfg.Exhausted()

	handler := api.NewHandler(store, svc, converter, log)

	if demo || cfg.Database.SeedDemo {
		if err := handler.Load(context.Background(), "demo"); err != nil {
			return fmt.Errorf("failed to seed demo scenario: %w", err)
		}
	}

	router := api.NewRouter(handler, cfg.CORS, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("currency_mode", cfg.Currency.Mode).
			Str("exhausted_policy", cfg.Routing.ExhaustedPolicy).
			Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return nil
}
