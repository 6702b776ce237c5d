package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/forge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 8192, cfg.Compose.TokenLimit)
	assert.Equal(t, 3, cfg.Resolver.MinSamples)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr string
	}{
		{"memory driver", func(c *config.Config) { c.Store.Driver = config.DriverMemory; c.Store.Path = "" }, ""},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "etcd" }, "unknown store driver"},
		{"badger without path", func(c *config.Config) { c.Store.Driver = config.DriverBadger; c.Store.Path = "" }, "store.path"},
		{"redis without addr", func(c *config.Config) { c.Store.Driver = config.DriverRedis; c.Store.Redis.Addr = "" }, "store.redis.addr"},
		{"negative budget", func(c *config.Config) { c.Compose.TokenLimit = -1 }, "token_limit"},
		{"zero min samples", func(c *config.Config) { c.Resolver.MinSamples = 0 }, "min_samples"},
		{"bad severity", func(c *config.Config) { c.Scanner.BlockAt = "severe" }, "scanner.block_at"},
		{"events without url", func(c *config.Config) { c.Events.Enabled = true }, "nats_url"},
		{"bad level", func(c *config.Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, config.FileName), []byte(`
store:
  driver: badger
  path: /var/lib/forge
compose:
  token_limit: 4096
log:
  level: debug
`), 0644))

	assert.Equal(t, filepath.Join(root, config.FileName), config.Find(nested))
	assert.Empty(t, config.Find(t.TempDir()))

	t.Setenv("FORGE_TOKEN_LIMIT", "2048")
	t.Setenv("FORGE_NATS_URL", "nats://localhost:4222")

	cfg, used, err := config.Load(filepath.Join(root, config.FileName))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, config.FileName), used)
	assert.Equal(t, config.DriverBadger, cfg.Store.Driver)
	assert.Equal(t, "/var/lib/forge", cfg.Store.Path)
	assert.Equal(t, 2048, cfg.Compose.TokenLimit)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Events.Enabled)
}

func TestApplyEnv_RejectsBadInteger(t *testing.T) {
	cfg := config.Default()
	err := cfg.ApplyEnv(func(key string) (string, bool) {
		if key == "FORGE_REDIS_DB" {
			return "two", true
		}
		return "", false
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FORGE_REDIS_DB")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
