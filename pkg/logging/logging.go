// Package logging configures colored structured logging with tint.
//
// Usage:
//
//	logging.Setup("")                        // level from LOG_LEVEL, default info
//	logging.Setup(cfg.Log.Level)             // level from configuration
//	logging.SetupWithLevel(slog.LevelDebug)  // explicit level override
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures colored logging at the named level. An empty name falls
// back to the LOG_LEVEL environment variable and then to info.
func Setup(level string) error {
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	parsed, err := ParseLevel(level)
	if err != nil {
		return err
	}
	SetupWithLevel(parsed)
	return nil
}

// SetupWithLevel configures colored logging at the given level.
func SetupWithLevel(level slog.Level) {
	slog.SetDefault(New(os.Stderr, level))
}

// New returns a tint logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  level == slog.LevelDebug,
	}))
}

// ParseLevel parses debug, info, warn or error. The empty string is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
