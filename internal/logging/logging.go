package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

func New(level string) zerolog.Logger {
	return newLogger(level, os.Stdout)
}

// NewWithFile logs to the given file path, falling back to stdout when the
// path is empty or cannot be opened. The worker binaries use this with the
// SCHEDULER_LOG_FILE / NOTIFIER_LOG_FILE environment variables.
func NewWithFile(level, path string) zerolog.Logger {
	if path == "" {
		return New(level)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return New(level)
	}
	return newLogger(level, f)
}

func newLogger(level string, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
