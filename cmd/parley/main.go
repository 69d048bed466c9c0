package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/parleychat/parley/internal/plugin/media"
	"github.com/parleychat/parley/internal/server"
	"github.com/parleychat/parley/pkg/config"
	"github.com/parleychat/parley/pkg/logging"
)

func main() {
	// a missing .env is fine; production sets real environment variables.
	_ = godotenv.Load()

	logger := logging.New(logging.LevelDebug)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	resolver := media.FixedResolver{Duration: 4 * time.Minute}
	app, err := server.NewApp(logger, ctx, cfg, resolver)
	if err != nil {
		logger.Error("Failed to initialize application", slog.Any("error", err))
		os.Exit(1)
	}
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
