package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Addr())
	assert.Equal(t, 16, cfg.Pool.MaxTotal)
	assert.Equal(t, 5*time.Minute, cfg.Caches.ClanTTL)
	assert.Equal(t, 30*time.Second, cfg.Locks.Disband)
	assert.Equal(t, 2*time.Minute, cfg.Requests.VoteTTL)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)

	assert.Regexp(t, `^node-[0-9a-f]{8}$`, cfg.NodeID)
	assert.NotEqual(t, cfg.NodeID, Default().NodeID)
}

func TestLoadPartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
host: redis.internal
port: 6380
node_id: lobby-1
pool:
  max_total: 32
  max_idle: 8
  min_idle: 2
  timeout: 3s
locks:
  default: 15s
  bank: 5s
  disband: 30s
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis.internal:6380", cfg.Addr())
	assert.Equal(t, "lobby-1", cfg.NodeID)
	assert.Equal(t, 32, cfg.Pool.MaxTotal)
	assert.Equal(t, 15*time.Second, cfg.Locks.Default)
	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Minute, cfg.Requests.TTL)
	assert.Equal(t, 5*time.Second, cfg.Reconnect.Delay)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("host: [unclosed"), 0o644))
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrConfigParse)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"empty host", func(c *Config) { c.Host = "" }, ErrInvalidEndpoint},
		{"port out of range", func(c *Config) { c.Port = 70000 }, ErrInvalidEndpoint},
		{"zero pool", func(c *Config) { c.Pool.MaxTotal = 0 }, ErrInvalidPool},
		{"idle bounds inverted", func(c *Config) { c.Pool.MinIdle = 9 }, ErrInvalidPool},
		{"negative lock timeout", func(c *Config) { c.Locks.Bank = -time.Second }, ErrInvalidTTL},
		{"zero cache ttl", func(c *Config) { c.Caches.PlayerTTL = 0 }, ErrInvalidTTL},
		{"separator in node id", func(c *Config) { c.NodeID = "shard|1" }, ErrInvalidNodeID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.True(t, errors.Is(cfg.Validate(), tt.want))
		})
	}
}
