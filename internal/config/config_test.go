package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "")
	t.Setenv("WS_HEARTBEAT_INTERVAL_SECONDS", "")
	t.Setenv("WS_ALLOWED_ORIGINS", "")
	t.Setenv("REDIS_PRESENCE_TTL_SECONDS", "")
	t.Setenv("INSTANCE_ID", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL())
	assert.Equal(t, 25*time.Second, cfg.Realtime.HeartbeatInterval())
	assert.Equal(t, 20*time.Second, cfg.Realtime.HeartbeatTimeout())
	assert.Nil(t, cfg.Realtime.AllowedOrigins)
	assert.Equal(t, "presence:online", cfg.Redis.PresenceKey)
	assert.Equal(t, 90*time.Second, cfg.Redis.PresenceTTL())
	assert.Empty(t, cfg.Redis.InstanceID)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("AUTH_ACCESS_TOKEN_TTL_MINUTES", "5")
	t.Setenv("WS_HEARTBEAT_TIMEOUT_SECONDS", "3")
	t.Setenv("WS_ALLOWED_ORIGINS", " localhost:3000, ,example.org ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.App.Addr())
	assert.Equal(t, 5*time.Minute, cfg.Auth.TokenTTL())
	assert.Equal(t, 3*time.Second, cfg.Realtime.HeartbeatTimeout())
	assert.Equal(t, []string{"localhost:3000", "example.org"}, cfg.Realtime.AllowedOrigins)
}

func TestLoad_InvalidRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_BadIntFallsBack(t *testing.T) {
	t.Setenv("WS_SEND_BUFFER", "lots")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Realtime.SendBuffer)
}
