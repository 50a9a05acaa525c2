package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lherron/labelsync/internal/visited"
)

// TempCache opens a SQLite visited cache in a temporary directory
func TempCache(t *testing.T) (*visited.SQLite, string) {
	t.Helper()

	cachePath := filepath.Join(t.TempDir(), "cache.db")

	cache, err := visited.OpenSQLite(cachePath)
	if err != nil {
		t.Fatalf("Failed to create test cache: %v", err)
	}

	t.Cleanup(func() {
		cache.Close()
	})

	return cache, cachePath
}

// WriteFile writes content to a file in a temporary directory
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file %s: %v", path, err)
	}
	return path
}

// ReadFile reads content from a file
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(data)
}

// AssertNoError asserts that an error is nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertStringContains asserts that a string contains a substring
func AssertStringContains(t *testing.T, str, substr string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		t.Fatalf("Expected string to contain %q, got %q", substr, str)
	}
}

// AssertLabels asserts that two label lists are equal in order
func AssertLabels(t *testing.T, want, got []string) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("Expected labels %v, got %v", want, got)
	}
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("Expected labels %v, got %v", want, got)
		}
	}
}
