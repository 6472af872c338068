package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"loyalpay/internal/config"
	"loyalpay/internal/infrastructure"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	infrastructure.SetupLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("loyalpay is running", "env", cfg.Env)
	if err := app.Run(ctx); err != nil {
		slog.Error("server failed", "error", err)
		cleanup()
		os.Exit(1)
	}
	slog.Info("loyalpay stopped")
}
