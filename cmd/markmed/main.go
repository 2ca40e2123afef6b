package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/sandeep89846/MarkMe/internal/config"
	"github.com/sandeep89846/MarkMe/internal/infra/db"
	httpinfra "github.com/sandeep89846/MarkMe/internal/infra/http"
)

func main() {
	cfg := config.FromEnv()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Str("service", "markmed").Logger()

	store, err := db.NewStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init store")
	}
	if err := store.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	srv := httpinfra.NewServer(cfg, store, logger)
	logger.Info().Str("addr", cfg.HTTPAddr).Msg("starting server")
	if err := srv.Run(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
