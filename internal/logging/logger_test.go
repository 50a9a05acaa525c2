package logging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "logs", "run.log")

	logger, closer, err := New(Config{
		Level:    "info",
		Format:   "json",
		FilePath: logPath,
		Console:  &console,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info().Str("page", "Root").Msg("Starting to work on page")
	logger.Debug().Msg("hidden")

	if err := closer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	for name, out := range map[string]string{"console": console.String(), "file": string(data)} {
		if !strings.Contains(out, "Starting to work on page") {
			t.Errorf("%s output missing info message: %s", name, out)
		}
		if strings.Contains(out, "hidden") {
			t.Errorf("%s output contains debug message below level: %s", name, out)
		}
	}
}

func TestErrorEventsCarryCaller(t *testing.T) {
	var buf bytes.Buffer

	logger, _, err := New(Config{Format: "json", Console: &buf})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info().Msg("plain")
	infoLine := buf.String()
	if strings.Contains(infoLine, `"caller"`) {
		t.Errorf("info event should not carry caller: %s", infoLine)
	}

	buf.Reset()
	logger.Error().Err(errors.New("boom")).Msg("request failed")
	errorLine := buf.String()
	if !strings.Contains(errorLine, `"caller"`) {
		t.Errorf("error event should carry caller: %s", errorLine)
	}
	if !strings.Contains(errorLine, `"error":"boom"`) {
		t.Errorf("error event missing error field: %s", errorLine)
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer

	logger, _, err := New(Config{Console: &buf, NoColor: true})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	logger.Warn().Msg("careful")

	out := buf.String()
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("console format should not emit JSON: %s", out)
	}
	if !strings.Contains(out, "careful") {
		t.Errorf("console output missing message: %s", out)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" info ", zerolog.InfoLevel},
		{"disabled", zerolog.Disabled},
		{"invalid", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
