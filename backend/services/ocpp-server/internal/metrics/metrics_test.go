package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StationsConnected))

	m.ObserveRequest("Heartbeat", "ok", time.Millisecond)
	m.ObserveRequest("Heartbeat", "ok", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("Heartbeat", "ok")))

	m.ObserveCall("RemoteStartTransaction", "Timeout", time.Second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboundCalls.WithLabelValues("RemoteStartTransaction", "Timeout")))
}

func TestMetricsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed()
		m.Admission("accepted")
		m.ObserveRequest("Heartbeat", "ok", 0)
		m.ObserveCall("Reset", "ok", 0)
		m.MessageLogDrop()
	})
}
