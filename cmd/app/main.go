// File: cmd/app/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mindspace/internal/application"
	"mindspace/internal/config"
	"mindspace/internal/infra/logging"
	"mindspace/internal/infra/metrics"
)

// set with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := application.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	logger.Info().
		Str("version", version).
		Str("storage", cfg.Storage.Backend).
		Str("classifier", cfg.Classifier.Provider).
		Int("port", cfg.HTTP.Port).
		Msg("mindspace starting")

	if err := app.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server stopped with error")
	}
}
