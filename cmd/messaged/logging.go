package main

import (
	"log/slog"
	"os"
	"strings"
)

// setupLogger builds the daemon's structured logger. The returned
// *slog.LevelVar backs the handler's level and can be changed after
// startup — the admin surface's /debug/loglevel endpoint uses it to
// implement config.SafeConfig's log.level hot-reload without requiring
// a full logger rebuild.
func setupLogger(level, format string) (*slog.Logger, *slog.LevelVar) {
	levelVar := &slog.LevelVar{}
	levelVar.Set(parseLevel(level))

	opts := &slog.HandlerOptions{
		Level:     levelVar,
		AddSource: strings.ToLower(level) == "debug",
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	logger := slog.New(handler).With(
		"service", appName,
		"version", Version,
		"pid", os.Getpid(),
	)
	return logger, levelVar
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
