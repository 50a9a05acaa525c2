// Package logging builds the zerolog logger used by a run.
//
// Every event goes to the console and, when a log path is configured, to an
// append-only log file. Error-level events carry the caller's file and line.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: debug, info, warn, error.
	// Default: info
	Level string

	// Format is the output format: console or json.
	// Default: console
	Format string

	// FilePath is the log file. Empty disables file output.
	FilePath string

	// Console is the terminal writer.
	// Default: os.Stderr
	Console io.Writer

	// NoColor disables ANSI colors on the console writer.
	NoColor bool
}

// errorCallerSkip is the number of frames between Event.Caller and the
// code that emitted the event when called from a hook.
const errorCallerSkip = 3

type errorCallerHook struct{}

func (h *errorCallerHook) Run(e *zerolog.Event, level zerolog.Level, _ string) {
	if level >= zerolog.ErrorLevel && level < zerolog.NoLevel {
		e.Caller(errorCallerSkip)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger from cfg. The returned closer releases the log file.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}

	zerolog.TimeFieldFormat = time.RFC3339

	writers := []io.Writer{formatWriter(cfg.Console, cfg.Format, cfg.NoColor)}
	var closer io.Closer = nopCloser{}

	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, formatWriter(f, cfg.Format, true))
		closer = f
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger().
		Hook(&errorCallerHook{})

	return logger, closer, nil
}

func formatWriter(w io.Writer, format string, noColor bool) io.Writer {
	if strings.EqualFold(format, "json") {
		return w
	}
	return zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    noColor,
	}
}

// ParseLevel converts a string level to zerolog.Level.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
