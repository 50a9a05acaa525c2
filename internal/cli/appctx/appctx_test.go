package appctx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/lherron/labelsync/internal/visited"
)

// isolate runs the test from an empty temp dir that is also $HOME.
func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("LABELSYNC_CONFIG", "")
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("Failed to change to temp directory: %v", err)
	}
	return tmpDir
}

func testCommand(args ...string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{}
	cmd.Flags().String("config", "", "Config path")
	cmd.Flags().String("db", "", "Cache path")
	cmd.Flags().String("log-level", "", "Log level")
	cmd.Flags().Bool("dry-run", false, "Dry run")
	cmd.Flags().String("root", "", "Root page")
	cmd.ParseFlags(args)

	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	return cmd, &stderr
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "labelsync.yaml")
	content := `host: https://wiki.example.com
space_key: DOCS
username: bot
password: secret
root_page_on_confluence: Team Plans
db: ` + filepath.Join(dir, "visited.db") + `
log_path: ` + filepath.Join(dir, "logs", "run.log") + `
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBootstrap_CacheOnly(t *testing.T) {
	dir := isolate(t)
	cmd, _ := testCommand("--config", writeConfig(t, dir))

	app, err := Bootstrap(cmd, CacheOnly())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config == nil {
		t.Error("Config should not be nil")
	}
	if app.Cache == nil {
		t.Error("Cache should not be nil when NeedsCache is true")
	}
	if app.Engine != nil || app.Executor != nil {
		t.Error("remote wiring should be nil when NeedsRemote is false")
	}
	if _, err := os.Stat(filepath.Join(dir, "logs", "run.log")); err == nil {
		t.Error("log file should not be created without FileLog")
	}
}

func TestBootstrap_ForRun(t *testing.T) {
	dir := isolate(t)
	cmd, stderr := testCommand("--config", writeConfig(t, dir))

	app, err := Bootstrap(cmd, ForRun())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Engine == nil || app.Client == nil || app.Executor == nil || app.Metrics == nil {
		t.Fatal("run wiring incomplete")
	}
	if app.Executor.Host() != "https://wiki.example.com/" {
		t.Errorf("executor host = %q", app.Executor.Host())
	}
	if app.RunID == "" {
		t.Error("RunID should be set")
	}

	app.Logger.Info().Msg("hello")
	if !strings.Contains(stderr.String(), app.RunID) {
		t.Errorf("console log missing run id: %s", stderr.String())
	}
	app.Close()

	data, err := os.ReadFile(filepath.Join(dir, "logs", "run.log"))
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file = %q", data)
	}
}

func TestBootstrap_FlagOverrides(t *testing.T) {
	dir := isolate(t)
	override := filepath.Join(dir, "override.db")
	cmd, _ := testCommand("--config", writeConfig(t, dir), "--db", override, "--root", "Other", "--dry-run")

	app, err := Bootstrap(cmd, CacheOnly())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if app.Config.DBPath != override {
		t.Errorf("DBPath = %q, want %q", app.Config.DBPath, override)
	}
	if app.Config.RootPage != "Other" {
		t.Errorf("RootPage = %q, want Other", app.Config.RootPage)
	}
	if !app.Config.DryRun {
		t.Error("DryRun should be set by --dry-run")
	}
	if _, err := os.Stat(override); err != nil {
		t.Errorf("override cache not created: %v", err)
	}
}

func TestBootstrap_InvalidConfigForRun(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "partial.yaml")
	if err := os.WriteFile(path, []byte("space_key: DOCS\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cmd, _ := testCommand("--config", path)

	if _, err := Bootstrap(cmd, ForRun()); err == nil {
		t.Fatal("expected error for missing host")
	}

	// Cache inspection does not need connection settings.
	app, err := Bootstrap(cmd, CacheOnly())
	if err != nil {
		t.Fatalf("Bootstrap CacheOnly failed: %v", err)
	}
	app.Close()
}

func TestBootstrap_MemoryBackend(t *testing.T) {
	dir := isolate(t)
	t.Setenv("LABELSYNC_CACHE_BACKEND", "memory")
	cmd, _ := testCommand("--config", writeConfig(t, dir))

	app, err := Bootstrap(cmd, CacheOnly())
	if err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	defer app.Close()

	if _, ok := app.Cache.(*visited.Memory); !ok {
		t.Errorf("Cache = %T, want *visited.Memory", app.Cache)
	}
}

func TestWithApp(t *testing.T) {
	dir := isolate(t)
	cmd, _ := testCommand("--config", writeConfig(t, dir))

	var seen *App
	run := WithApp(CacheOnly(), func(app *App, cmd *cobra.Command, args []string) error {
		seen = app
		return app.Cache.Add(context.Background(), visited.Entry{ID: "7"})
	})
	if err := run(cmd, nil); err != nil {
		t.Fatalf("WithApp: %v", err)
	}
	if seen == nil || seen.Cache != nil {
		t.Error("cache should be closed after the wrapped function returns")
	}
}
