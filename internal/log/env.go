package log

import (
	"log/slog"
	"os"
	"slices"
	"strings"
)

// InitLoggerFromEnv installs a debug-level default logger when the DEBUG
// env var is 1, true or yes, and otherwise leaves slog's default in place.
// InitLogger honours the same variable, so DEBUG always forces verbose
// output during local troubleshooting regardless of what a config file says.
func InitLoggerFromEnv() {
	debugValues := []string{"1", "true", "yes"}
	if slices.Contains(debugValues, strings.ToLower(os.Getenv("DEBUG"))) {
		InitLogger("debug")
		return
	}
	slog.Debug("logger initialized")
}

// InitLogger installs the default logger at the given level, which is
// expected to come from the loaded config ("debug", "info", "warn", or
// "error"; anything else falls back to info). A DEBUG env var of 1, true
// or yes overrides level with "debug".
func InitLogger(level string) {
	if slices.Contains([]string{"1", "true", "yes"}, strings.ToLower(os.Getenv("DEBUG"))) {
		level = "debug"
	}
	logger := slog.New(NewSlogTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
	slog.SetDefault(logger)
	slog.Debug("logger initialized", "level", level)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
