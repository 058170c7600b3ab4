package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seedbed.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
	assert.Equal(t, 5*time.Minute, cfg.Lifecycle.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.ArchiveInterval)
	assert.Equal(t, 30*24*time.Hour, cfg.Lifecycle.MarkerRetention)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000

[lifecycle]
interval = "1m"
workers = 8

[redis]
enabled = true
address = "cache:6379"

[moderation]
provider = "http"
url = "http://moderator.local"
`)

	cfg, used, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, used)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Bind, "unset keys keep defaults")
	assert.Equal(t, time.Minute, cfg.Lifecycle.Interval)
	assert.Equal(t, 24*time.Hour, cfg.Lifecycle.ArchiveInterval)
	assert.Equal(t, 8, cfg.Lifecycle.Workers)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.Address)
	assert.Equal(t, "http", cfg.Moderation.Provider)
}

func TestLoadMissingExplicitPath(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)
}

func TestLoadFromEnv(t *testing.T) {
	path := writeConfig(t, "[logging]\nlevel = \"debug\"\n")
	t.Setenv(EnvConfigPath, path)

	cfg, used, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, path, used)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "[moderation]\nprovider = \"oracle\"\n")

	_, _, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMalformed(t *testing.T) {
	path := writeConfig(t, "[server\nport = ")

	_, _, err := Load(path)
	assert.Error(t, err)
}
