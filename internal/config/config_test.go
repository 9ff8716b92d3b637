package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, filepath.Join("data", "stash.db"), cfg.DBPath())
	assert.Equal(t, filepath.Join("data", "bleve"), cfg.IndexPath())
	assert.Equal(t, filepath.Join("data", "index.db"), cfg.Server.DBPath)
	assert.Equal(t, 5*time.Minute, cfg.SyncInterval())
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.BatchTimeout())
	assert.Equal(t, "localhost:6893", cfg.ServerAddr())
	assert.Zero(t, cfg.IdleTimeout())
	assert.False(t, cfg.Completion.KeepPartialOnFailover)

	require.Contains(t, cfg.Server.Profiles, "default")
	assert.Equal(t, "ollama", cfg.Server.Profiles["default"].Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Server.Profiles["default"].Model)
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir = "/var/lib/stash"

[sync]
interval_seconds = 0
batch_size = 20

[server]
port = 9000

[server.profiles.minilm]
provider = "openai"
base_url = "http://embed:8080"
model = "all-minilm"
requests_per_minute = 120

[completion]
idle_timeout_seconds = 15
keep_partial_on_failover = true
`), 0o644))

	t.Setenv("STASH_SYNC_BATCH_SIZE", "5")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/stash", cfg.DataDir)
	assert.Equal(t, "/var/lib/stash/index.db", cfg.Server.DBPath)
	assert.Zero(t, cfg.SyncInterval())
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, "localhost:9000", cfg.ServerAddr())
	assert.Equal(t, 15*time.Second, cfg.IdleTimeout())
	assert.True(t, cfg.Completion.KeepPartialOnFailover)

	require.Contains(t, cfg.Server.Profiles, "minilm")
	p := cfg.Server.Profiles["minilm"]
	assert.Equal(t, "openai", p.Provider)
	assert.Equal(t, "http://embed:8080", p.BaseURL)
	assert.Equal(t, 120, p.RequestsPerMinute)
}

func TestLoad_Overrides(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", map[string]any{"data_dir": "/tmp/stash", "log.json": true})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/stash", cfg.DataDir)
	assert.Equal(t, "/tmp/stash/index.db", cfg.Server.DBPath)
	assert.True(t, cfg.Log.JSON)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"negative interval", func(c *Config) { c.Sync.IntervalSeconds = -1 }},
		{"zero batch", func(c *Config) { c.Sync.BatchSize = 0 }},
		{"zero batch timeout", func(c *Config) { c.Sync.BatchTimeoutSeconds = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
		{"negative idle", func(c *Config) { c.Completion.IdleTimeoutSeconds = -3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := FromViper(New(""))
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
