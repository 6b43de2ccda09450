package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("OCPP_POSTGRES_DSN", "postgres://localhost/ocpp")
	t.Setenv("OCPP_CALL_TIMEOUT", "20s")
	t.Setenv("OCPP_REDIS_ADDR", "localhost:6379")
	t.Setenv("OCPP_NODE_ID", "node-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/ocpp", cfg.Database.DSN)
	assert.Equal(t, 20*time.Second, cfg.OCPP.CallTimeout)
	assert.Equal(t, 3*time.Second, cfg.OCPP.LookupTimeout)
	assert.Equal(t, 300, cfg.OCPP.HeartbeatInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.PresenceTTL)
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, 256, cfg.Services.EventsBuffer)
	assert.Equal(t, ":8081", cfg.HTTPAddress())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ocpp.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: ":9000"
database:
  dsn: postgres://db/ocpp
ocpp:
  heartbeatInterval: 60
services:
  eventsUrl: http://billing:8080
`), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTPAddress())
	assert.Equal(t, 60, cfg.OCPP.HeartbeatInterval)
	assert.Equal(t, "http://billing:8080", cfg.Services.EventsURL)
	assert.Equal(t, 30*time.Second, cfg.OCPP.CallTimeout, "defaults survive a partial file")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate(), "dsn is required")

	cfg.Database.DSN = "postgres://db"
	require.NoError(t, cfg.Validate())

	cfg.WebSocket.PingInterval = time.Minute
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.DSN = "postgres://db"
	cfg.HTTP.WriteTimeout = 10 * time.Second
	assert.Error(t, cfg.Validate())
}
