package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"serve", "worker", "migrate", "rules", "events", "renewals"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestRootOptions_LoadConfigDefaultsWithoutFile(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	opts := &RootOptions{}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.NotZero(t, cfg.Server.Port)
}

func TestRootOptions_LoadConfigFromFlagPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ipdocket.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9999\n"), 0o600))

	opts := &RootOptions{ConfigPath: path, LogLevel: "debug"}
	cfg, err := opts.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestRootOptions_LoadConfigMissingFileFails(t *testing.T) {
	opts := &RootOptions{ConfigPath: "/nonexistent/ipdocket.yaml"}
	_, err := opts.loadConfig()
	assert.Error(t, err)
}
