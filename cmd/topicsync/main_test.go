package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"topicsync/pkg/auth"
	"topicsync/pkg/supabase/supabasetest"
)

const testKey = "cli-test-service-key"

type harness struct {
	dir     string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	stdin   string
	manager *auth.Manager
	store   *auth.MockStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	isolateEnv(t)
	manager, store := auth.NewMockManager()
	return &harness{dir: t.TempDir(), manager: manager, store: store}
}

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SUPABASE_URL", "SUPABASE_KEY", "TOPICSYNC_SUPABASE_URL", "TOPICSYNC_SUPABASE_KEY",
		"TOPICSYNC_PROJECT", "TOPICSYNC_TIMEOUT", "TOPICSYNC_MAX_ATTEMPTS", "TOPICSYNC_REQUESTS_PER_MINUTE",
		"TOPICSYNC_ID_COLUMN", "TOPICSYNC_VALUE_COLUMN", "TOPICSYNC_CHECKPOINT_ON_FAILURE",
		"TOPICSYNC_LOG_LEVEL", "TOPICSYNC_LOG_FILE", "TOPICSYNC_LOG_FORMAT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func (h *harness) run(ctx context.Context, args ...string) int {
	h.stdout.Reset()
	h.stderr.Reset()
	cio := &cliIO{
		stdin:      strings.NewReader(h.stdin),
		stdout:     &h.stdout,
		stderr:     &h.stderr,
		stdinFd:    -1,
		newManager: func() (*auth.Manager, error) { return h.manager, nil },
	}
	return execute(ctx, append(args, "--log-level", "disabled", "--no-color"), cio)
}

func (h *harness) file(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func newServer(t *testing.T) *supabasetest.Server {
	t.Helper()
	srv := supabasetest.NewServer(testKey)
	t.Cleanup(srv.Close)
	return srv
}

const inputCSV = "id,topics_list\n1,\"['a', 'b']\"\n2,[\"c\"]\n"

func TestUpdateCommand(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("categories", "1", "2")

	input := h.file(t, "input.csv", inputCSV)
	ckpt := filepath.Join(h.dir, "progress.txt")

	code := h.run(context.Background(), "update", input, ckpt, "categories", "topics",
		"--supabase-url", srv.URL(), "--supabase-key", testKey)
	require.Equal(t, 0, code, h.stderr.String())

	data, err := os.ReadFile(ckpt)
	require.NoError(t, err)
	assert.Equal(t, "2\n", string(data))

	values, ok := srv.Values("categories", "1", "topics")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, values)

	assert.Contains(t, h.stdout.String(), "Updated:       2")
	assert.Contains(t, h.stdout.String(), "categories.topics")

	// A second run skips everything
	code = h.run(context.Background(), "update", input, ckpt, "categories", "topics",
		"--supabase-url", srv.URL(), "--supabase-key", testKey)
	require.Equal(t, 0, code)
	assert.Equal(t, 2, srv.PatchCount())
	assert.Contains(t, h.stdout.String(), "Skipped:       2")
}

func TestBarePositionalAlias(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("books_metadata", "1", "2")
	t.Setenv("SUPABASE_URL", srv.URL())
	t.Setenv("SUPABASE_KEY", testKey)

	input := h.file(t, "input.csv", inputCSV)
	ckpt := filepath.Join(h.dir, "ckpt")

	code := h.run(context.Background(), input, ckpt, "books_metadata", "ai_categories", "--quiet")
	require.Equal(t, 0, code, h.stderr.String())

	values, _ := srv.Values("books_metadata", "2", "ai_categories")
	assert.Equal(t, []string{"c"}, values)
	assert.NotContains(t, h.stdout.String(), "TOPICSYNC")
	assert.Contains(t, h.stdout.String(), "Checkpoint:    2")
}

func TestRowFailuresStillExitZero(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("categories", "1", "2")
	srv.FailRow("1", 500, -1)

	input := h.file(t, "input.csv", inputCSV+"3,not-a-list\n")
	ckpt := filepath.Join(h.dir, "ckpt")

	code := h.run(context.Background(), "update", input, ckpt, "categories", "ai_topics",
		"--supabase-url", srv.URL(), "--supabase-key", testKey, "--hold-on-failure")
	assert.Equal(t, 0, code, h.stderr.String())
	assert.Contains(t, h.stdout.String(), "2 rows need attention")

	_, err := os.Stat(ckpt)
	assert.True(t, os.IsNotExist(err), "held checkpoint must not be written")
}

func TestUpdateConfigurationErrors(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "unknown table",
			args:    []string{"update", "in.csv", "ckpt", "authors", "topics", "--supabase-url", "https://x.supabase.co", "--supabase-key", "k"},
			wantErr: "unknown table",
		},
		{
			name:    "column not valid for table",
			args:    []string{"update", "in.csv", "ckpt", "categories", "title", "--supabase-url", "https://x.supabase.co", "--supabase-key", "k"},
			wantErr: "column not valid for table",
		},
		{
			name:    "missing key",
			args:    []string{"update", "in.csv", "ckpt", "categories", "topics", "--supabase-url", "https://x.supabase.co"},
			wantErr: "Supabase API key is required",
		},
		{
			name:    "unknown project",
			args:    []string{"update", "in.csv", "ckpt", "categories", "topics", "--project", "nope"},
			wantErr: "credentials not found",
		},
		{
			name:    "wrong argument count",
			args:    []string{"in.csv", "ckpt", "categories"},
			wantErr: "accepts 4 arg(s)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			code := h.run(context.Background(), tt.args...)
			assert.Equal(t, 1, code)
			assert.Contains(t, h.stderr.String(), tt.wantErr)
		})
	}
}

func TestUpdateCorruptCheckpointIsFatal(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("categories", "1", "2")

	input := h.file(t, "input.csv", inputCSV)
	ckpt := h.file(t, "ckpt", "1\n2\n")

	code := h.run(context.Background(), "update", input, ckpt, "categories", "topics",
		"--supabase-url", srv.URL(), "--supabase-key", testKey)
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "corrupt")
	assert.Zero(t, srv.PatchCount())
}

func TestUpdateUsesStoredProject(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("categories", "1", "2")
	require.NoError(t, h.manager.Store(&auth.Project{Name: "books", URL: srv.URL(), APIKey: testKey}))

	input := h.file(t, "input.csv", inputCSV)
	code := h.run(context.Background(), "update", input, filepath.Join(h.dir, "ckpt"), "categories", "topics", "--project", "books")
	require.Equal(t, 0, code, h.stderr.String())
	assert.Equal(t, 2, srv.PatchCount())
}

func TestUpdateInterrupted(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	srv.Seed("categories", "1", "2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	input := h.file(t, "input.csv", inputCSV)
	code := h.run(ctx, "update", input, filepath.Join(h.dir, "ckpt"), "categories", "topics",
		"--supabase-url", srv.URL(), "--supabase-key", testKey)
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stdout.String(), "Interrupted")
	assert.Zero(t, srv.PatchCount())
}

func TestCheckpointCommands(t *testing.T) {
	h := newHarness(t)
	ckpt := filepath.Join(h.dir, "ckpt")

	require.Equal(t, 0, h.run(context.Background(), "checkpoint", "show", ckpt))
	assert.Contains(t, h.stdout.String(), "No checkpoint")

	require.Equal(t, 0, h.run(context.Background(), "checkpoint", "set", ckpt, "42"))
	data, err := os.ReadFile(ckpt)
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(data))

	require.Equal(t, 0, h.run(context.Background(), "checkpoint", "show", ckpt, "--quiet"))
	assert.Equal(t, "42\n", h.stdout.String())

	require.Equal(t, 0, h.run(context.Background(), "checkpoint", "clear", ckpt))
	_, err = os.Stat(ckpt)
	assert.True(t, os.IsNotExist(err))
	backup, err := os.ReadFile(ckpt + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "42\n", string(backup))

	assert.Equal(t, 1, h.run(context.Background(), "checkpoint", "set", ckpt, " "))
}

func TestConfigCommands(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(h.dir, "conf", "topicsync.yaml")

	require.Equal(t, 0, h.run(context.Background(), "config", "init", path), h.stderr.String())
	assert.Equal(t, 1, h.run(context.Background(), "config", "init", path))
	assert.Contains(t, h.stderr.String(), "already exists")

	t.Setenv("SUPABASE_KEY", "abcdefghijklmnopqrstuvwxyz")
	require.Equal(t, 0, h.run(context.Background(), "config", "show", "--config", path), h.stderr.String())
	out := h.stdout.String()
	assert.Contains(t, out, "api_key: abcd...wxyz")
	assert.NotContains(t, out, "abcdefghijklmnopqrstuvwxyz")
	assert.Contains(t, out, "value_column: topics_list")

	require.Equal(t, 0, h.run(context.Background(), "config", "validate", "--config", path))
	assert.Contains(t, h.stdout.String(), "Configuration is valid")
}

func TestConfigValidateRemote(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)
	t.Setenv("SUPABASE_URL", srv.URL())

	t.Setenv("SUPABASE_KEY", "wrong")
	assert.Equal(t, 1, h.run(context.Background(), "config", "validate", "--remote"))
	assert.Contains(t, h.stderr.String(), "remote check failed")

	t.Setenv("SUPABASE_KEY", testKey)
	require.Equal(t, 0, h.run(context.Background(), "config", "validate", "--remote"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "Reached categories")
}

func TestAuthCommands(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)

	h.stdin = srv.URL() + "/rest/v1/\n" + testKey + "\n"
	require.Equal(t, 0, h.run(context.Background(), "auth", "login", "books", "--verify"), h.stderr.String())
	assert.Contains(t, h.stdout.String(), "Connection verified")

	stored, err := h.manager.Retrieve("books")
	require.NoError(t, err)
	assert.Equal(t, srv.URL(), stored.URL)
	assert.Equal(t, testKey, stored.APIKey)

	h.stdin = ""
	require.Equal(t, 0, h.run(context.Background(), "auth", "list"))
	assert.Contains(t, h.stdout.String(), "books")
	assert.NotContains(t, h.stdout.String(), testKey)

	require.Equal(t, 0, h.run(context.Background(), "auth", "logout", "books"))
	assert.Zero(t, h.store.Count())
	assert.Equal(t, 1, h.run(context.Background(), "auth", "logout", "books"))
}

func TestAuthLoginRejectsBadKey(t *testing.T) {
	h := newHarness(t)
	srv := newServer(t)

	code := h.run(context.Background(), "auth", "login", "--url", srv.URL(), "--key", "wrong", "--verify")
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "verification failed")
	assert.Zero(t, h.store.Count())
}

func TestVersionFlag(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(context.Background(), "--version"))
	assert.Contains(t, h.stdout.String(), "topicsync dev")
}

func TestHelpListsEveryTarget(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, 0, h.run(context.Background(), "--help"))

	out := h.stdout.String()
	for _, pair := range []string{
		"categories.topics", "categories.ai_topics", "categories.ai_categories",
		"books_metadata.topics", "books_metadata.ai_topics", "books_metadata.ai_categories",
	} {
		assert.Contains(t, out, "  "+pair+"\n")
	}
}
