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

type listenerConfig struct {
	Port string `yaml:"port" env:"TEST_LISTENER_PORT"`
}

type sampleConfig struct {
	Listener listenerConfig `yaml:"listener"`
	Timeout  time.Duration  `yaml:"timeout" env:"TEST_TIMEOUT"`
	Workers  int            `yaml:"workers" env:"TEST_WORKERS"`
	Verbose  bool           `yaml:"verbose" env:"TEST_VERBOSE"`
	Ignored  string         `env:"-"`
	failWith error
}

func (c *sampleConfig) Validate() error {
	return c.failWith
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listener:\n  port: \"9000\"\ntimeout: 10s\nworkers: 2\n"), 0o600))

	t.Setenv(defaultConfigPathEnv, path)
	t.Setenv("TEST_WORKERS", "8")
	t.Setenv("TEST_VERBOSE", "true")

	cfg := &sampleConfig{}
	require.NoError(t, LoadConfig(cfg))

	assert.Equal(t, "9000", cfg.Listener.Port)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfigDurationFromEnv(t *testing.T) {
	t.Setenv("TEST_TIMEOUT", "45")
	cfg := &sampleConfig{}
	require.NoError(t, LoadConfig(cfg))
	assert.Equal(t, 45*time.Second, cfg.Timeout)

	t.Setenv("TEST_TIMEOUT", "1m30s")
	require.NoError(t, LoadConfig(cfg))
	assert.Equal(t, 90*time.Second, cfg.Timeout)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	assert.Error(t, LoadConfig(nil))
	assert.Error(t, LoadConfig(sampleConfig{}))

	t.Setenv("TEST_WORKERS", "many")
	assert.Error(t, LoadConfig(&sampleConfig{}))
}

func TestLoadConfigRunsValidator(t *testing.T) {
	boom := errors.New("dsn required")
	err := LoadConfig(&sampleConfig{failWith: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
