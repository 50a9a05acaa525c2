package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/labelsync/internal/testutil"
)

type testEnv struct {
	dir        string
	configPath string
	fc         *testutil.FakeConfluence
}

// setupTestEnv writes a config pointing at a fake API and runs the test from
// an isolated temp dir that is also $HOME.
func setupTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("LABELSYNC_CONFIG", "")
	oldCwd, _ := os.Getwd()
	t.Cleanup(func() { os.Chdir(oldCwd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	fc := testutil.NewFakeConfluence(t, "DOCS")
	content := fmt.Sprintf(`host: %s
space_key: DOCS
username: bot
password: secret
db: %s
root_page_on_confluence: Team Plans
log_path: %s
log_format: json
max_retries: 2
retry_interval: 1ms
request_timeout: 5s
%s`, fc.URL(), filepath.Join(dir, "visited.db"), filepath.Join(dir, "run.log"), extra)

	return &testEnv{
		dir:        dir,
		configPath: testutil.WriteFile(t, dir, "labelsync.yaml", content),
		fc:         fc,
	}
}

// run executes the CLI and returns the exit code, stdout and stderr.
func (e *testEnv) run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *testEnv) runContext(t *testing.T, ctx context.Context, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", e.configPath}, args...)
	code := execute(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func buildTree(fc *testutil.FakeConfluence) {
	fc.AddPage("1", "Team Plans", "", "stale")
	fc.AddPage("2", "Roadmap", "1")
	fc.AddPage("3", "Sprint - #4", "2")
	fc.AddPage("4", "Budget", "1")
	fc.SetAttachments("4", 1)
}
