package app

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns the service logger. LOG_FORMAT=json selects structured
// output; anything else prints human-readable text.
func NewLogger(cfg *Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg *Config, out io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	}
	logger := slog.New(handler).With(slog.String("service", "purchasing"))
	if cfg != nil {
		logger = logger.With(slog.String("env", cfg.AppEnv))
	}
	return logger
}
