package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger writing to w (stderr when nil).
// JSON if VANITY_JSON_LOG=1/true/json else text; level from VANITY_LOG_LEVEL.
func Init(service string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	json := jsonFromEnv()
	opts := &slog.HandlerOptions{AddSource: false, Level: LevelFromString(os.Getenv("VANITY_LOG_LEVEL"))}

	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler).With("service", service)
	slog.SetDefault(logger)
	logger.Debug("logging initialized", "json", json)
	return logger
}

// LevelFromString maps debug/info/warn/error to a slog level, defaulting to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func jsonFromEnv() bool {
	mode := strings.ToLower(os.Getenv("VANITY_JSON_LOG"))
	return mode == "1" || mode == "true" || mode == "json"
}
