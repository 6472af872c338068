package infrastructure

import (
	"log/slog"
	"os"
	"strings"

	"loyalpay/internal/config"
)

// SetupLogger installs the process-wide slog logger: JSON in production,
// text otherwise.
func SetupLogger(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg.Env == config.EnvProduction {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler).With("service", "loyalpay"))
}
