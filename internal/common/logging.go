package common

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLogLevel maps LOG_LEVEL values onto slog levels.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}

// NewLogger builds the application logger and installs it as the slog default,
// so log.Printf banner output goes through the same handler.
func NewLogger(cfg *Config, version, app string) *slog.Logger {
	return newLogger(os.Stderr, cfg, version, app)
}

func newLogger(w io.Writer, cfg *Config, version, app string) *slog.Logger {
	level, _ := ParseLogLevel(cfg.LogLevel)

	var logger *slog.Logger
	if cfg.AppEnv == "prod" {
		h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
		logger = slog.New(h).With("app", app, "version", version)
	} else {
		h := tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
		logger = slog.New(h).With("app", app)
	}

	slog.SetDefault(logger)
	log.SetFlags(0)
	return logger
}

// Banner logs the framed title block every tool prints on start and exit.
func Banner(title string, args ...any) {
	log.Println("=========================================================")
	log.Printf(title, args...)
	log.Println("=========================================================")
}
