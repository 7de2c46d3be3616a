package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/balansai/finance-miniapp/internal/api"
	"github.com/balansai/finance-miniapp/internal/app"
	"github.com/balansai/finance-miniapp/internal/config"
	"github.com/balansai/finance-miniapp/internal/logger"
	"github.com/balansai/finance-miniapp/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Parse command-line flags
	port := flag.String("port", cfg.Server.Port, "HTTP server port (or set PORT env)")
	flag.Parse()

	// Initialize logger
	log := logger.NewFromConfig(cfg.Log.Level, cfg.Log.Format)

	m := metrics.New()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	components, err := app.New(ctx, cfg, log, m)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize components")
	}
	defer components.Close()

	handler := api.NewRouter(api.Deps{
		Store:         components.Store,
		Aggregator:    components.Aggregator,
		Gate:          components.Gate,
		Resolver:      components.Resolver,
		Metrics:       m,
		WritesEnabled: cfg.Server.WritesEnabled,
		Location:      cfg.Ledger.Location,
	}, log)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().
			Str("port", *port).
			Str("store", cfg.Store.Backend).
			Str("base_currency", cfg.Ledger.BaseCurrency).
			Bool("writes_enabled", cfg.Server.WritesEnabled).
			Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
