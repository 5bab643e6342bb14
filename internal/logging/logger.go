package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the process-wide slog default. Production emits JSON;
// anything else gets human-readable text with source locations.
func Init() {
	env := strings.ToLower(os.Getenv("APP_ENV"))
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var handler slog.Handler
	if env == "production" || env == "prod" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
