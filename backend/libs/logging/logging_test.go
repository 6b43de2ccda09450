package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	logger, err := New("ocpp-server", Options{Level: "DEBUG", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = New("", Options{Level: "nonsense"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LOG_FORMAT", "console")
	assert.Equal(t, Options{Level: "warn", Format: "console"}, OptionsFromEnv())
}

func TestFields(t *testing.T) {
	assert.Equal(t, "station_id", StationID("CP-1").Key)
	assert.Equal(t, "CP-1", StationID("CP-1").String)
	assert.Equal(t, "message_id", MessageID("m").Key)
	assert.Equal(t, "action", Action("Heartbeat").Key)
}
