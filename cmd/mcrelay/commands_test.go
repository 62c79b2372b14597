// Copyright 2024-2026 Aiku AI

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiku/mcrelay/pkg/config"
	"github.com/aiku/mcrelay/pkg/relay/mcfmt"
)

// These tests share the package-level flag variables and must not run in
// parallel.

func writeTestConfig(t *testing.T, body string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body = "storage:\n    path: " + filepath.Join(dir, "mcrelay.db") + "\n" + body
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	configPath = path
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCheckConfig(t *testing.T) {
	writeTestConfig(t, "relay:\n    chat_webhook_url: https://discord.com/api/webhooks/1/abc\n")
	out, err := execute(t, checkConfigCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "config OK")
	assert.Contains(t, out, "warning: discord.token is not set")

	writeTestConfig(t, "relay:\n    queue_capacity: 0\n")
	_, err = execute(t, checkConfigCmd())
	assert.Error(t, err)
}

func TestExampleConfig(t *testing.T) {
	out, err := execute(t, exampleConfigCmd())
	require.NoError(t, err)
	assert.Equal(t, config.ExampleConfig, out)
}

func TestLinkCommands(t *testing.T) {
	writeTestConfig(t, "")

	out, err := execute(t, linkCmd(), "author-1", "Steve")
	require.NoError(t, err)
	assert.Contains(t, out, "linked author-1 to Steve")

	out, err = execute(t, linksCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "AUTHOR")
	assert.Contains(t, out, "author-1")
	assert.Contains(t, out, "Steve")

	_, err = execute(t, unlinkCmd(), "author-1")
	require.NoError(t, err)
	_, err = execute(t, unlinkCmd(), "author-1")
	assert.ErrorContains(t, err, "not linked")

	_, err = execute(t, linkCmd(), "only-one-arg")
	assert.Error(t, err)
}

func TestPrefsCommands(t *testing.T) {
	writeTestConfig(t, "")

	out, err := execute(t, prefsCmd(), "hide", "Steve")
	require.NoError(t, err)
	assert.Contains(t, out, "hidden for Steve")

	out, err = execute(t, prefsCmd(), "show", "Steve")
	require.NoError(t, err)
	assert.Contains(t, out, "shown for Steve")
}

func TestOpenStore_RequiresPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n    path: \"\"\n"), 0o600))
	configPath = path
	_, err := openStore()
	assert.ErrorContains(t, err, "storage.path")
}

func TestLoadEnvFile(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	assert.NoError(t, loadEnvFile(""))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MCRELAY_TEST_ENV_FILE=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("MCRELAY_TEST_ENV_FILE") })
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "loaded", os.Getenv("MCRELAY_TEST_ENV_FILE"))
}

func TestNewLogger(t *testing.T) {
	log := newLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())
	log = newLogger(config.LoggingConfig{})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestLogBroadcaster(t *testing.T) {
	var buf bytes.Buffer
	b := logBroadcaster{log: zerolog.New(&buf)}
	require.NoError(t, b.Broadcast(context.Background(), mcfmt.Message{mcfmt.Text("hi")}, nil))
	assert.Contains(t, buf.String(), `"message":"hi"`)
}
