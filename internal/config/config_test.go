package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.HeartbeatInterval)
	assert.Equal(t, "memory", cfg.Battle.Store)
	assert.Equal(t, 30, cfg.Battle.Rules.StartingHealth)
	assert.Equal(t, 1, cfg.Battle.Rules.StartingMana)
	assert.Equal(t, 10, cfg.Battle.Rules.MaxMana)
	assert.Equal(t, 4, cfg.Battle.Rules.InitialHandSize)
	assert.Equal(t, "plain", cfg.Security.AuthMode)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
battle:
  store: redis
  rules:
    starting_health: 20
redis:
  enabled: true
  addrs: ["10.0.0.1:6379", "10.0.0.2:6379"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis", cfg.Battle.Store)
	assert.Equal(t, 20, cfg.Battle.Rules.StartingHealth)
	// 未覆盖的规则保留默认值
	assert.Equal(t, 4, cfg.Battle.Rules.InitialHandSize)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, []string{"10.0.0.1:6379", "10.0.0.2:6379"}, cfg.Redis.Addrs)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CARD_BATTLE_SESSION_TTL", "30m")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
