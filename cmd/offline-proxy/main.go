package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sternrassler/offline-cache/pkg/logging"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	version := flag.String("version", "", "Cache generation version (overrides config)")
	flag.Parse()

	cfg, names, err := loadConfig(*configPath, *version)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	logCfg := cfg.LoggingConfig()
	logCfg.Generation = names.Static
	logger := logging.Setup(logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, nil, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start")
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           a.proxyRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	admin := &http.Server{
		Addr:              cfg.AdminListen,
		Handler:           a.adminRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().
			Str("addr", cfg.Listen).
			Str("origin", cfg.Origin).
			Str("store", cfg.Store.Backend).
			Msg("Starting offline cache proxy")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", cfg.AdminListen).Msg("Starting admin server")
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Admin server failed")
		}
	}()

	// Requests pass through uncached until the generation is active
	go func() {
		if err := a.install(ctx); err != nil {
			logger.Error().Err(err).Msg("Generation not installed, serving pass-through")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Graceful shutdown failed")
	}
	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Admin server shutdown failed")
	}
	if err := a.engineWait(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Background cache writes still running at exit")
	}
}
