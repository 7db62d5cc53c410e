package config

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// NewLogger builds the process logger from cfg: human-readable text on
// stderr, one JSON line per record appended to cfg.LogFile. The returned
// close function releases the log file and is a no-op when only stderr is
// in use.
func NewLogger(cfg Config) (*slog.Logger, func() error) {
	file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		slog.Warn("log file unavailable, logging to stderr only", "file", cfg.LogFile, "error", err)
		return newLogger(os.Stderr, nil, cfg.LogLevel), func() error { return nil }
	}
	return newLogger(os.Stderr, file, cfg.LogLevel), file.Close
}

// newLogger fans records out over the given writers. file may be nil.
func newLogger(stderr, file io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	handlers := []slog.Handler{slog.NewTextHandler(stderr, opts)}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}
	return slog.New(slogmulti.Fanout(handlers...))
}
