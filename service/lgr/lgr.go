package lgr

import (
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger is the process-wide structured logger.
var Logger = New(os.Getenv("RUN_TIME_ENV"), os.Getenv("LOG_LEVEL"))

// New builds a logger: JSON for production runtimes, tinted text otherwise.
func New(runtimeEnv, level string) *slog.Logger {
	lvl := ParseLevel(level)

	if runtimeEnv == "prod" || runtimeEnv == "production" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: lvl,
		}))
	}

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: "15:04:05.000",
	}))
}

// Valid levels: "debug", "info", "warn", "error"
func ParseLevel(level string) slog.Level {
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

// SetLevel rebuilds the global logger once the configuration is known.
func SetLevel(runtimeEnv, level string) {
	Logger = New(runtimeEnv, level)
}
