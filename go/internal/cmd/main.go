package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(logLevel(getEnv("LOG_LEVEL", "info")))

	configPath := getEnv("CONFIG_PATH", "config.yaml")
	config, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startupCtx, cancel := context.WithTimeout(ctx, getEnvAsDuration("STARTUP_TIMEOUT", 15*time.Second))
	st, closeStore, err := setupStore(startupCtx)
	if err != nil {
		cancel()
		log.Fatal().Err(err).Msg("failed to set up store")
	}
	defer closeStore()

	services, err := setupServices(startupCtx, config, st)
	cancel()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	if err := services.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start services")
	}

	server := setupServer(services)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Int("generator_profiles", len(services.Profiles)).
			Bool("mirror", services.Mirror != nil).
			Msg("turingroom server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", 10))*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
	services.Stop()

	log.Info().Msg("turingroom shutdown complete")
}
