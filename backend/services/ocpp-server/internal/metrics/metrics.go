// Package metrics holds the Prometheus collectors of the OCPP server. All methods are
// safe to call on a nil *Metrics so components can run without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ocpp"

// Metrics contains all OCPP server metrics.
type Metrics struct {
	StationsConnected    prometheus.Gauge
	Admissions           *prometheus.CounterVec
	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	OutboundCalls        *prometheus.CounterVec
	OutboundCallDuration *prometheus.HistogramVec
	MessageLogDropped    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StationsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "connected",
			Help:      "Number of stations with a live session",
		}),
		Admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sessions",
				Name:      "admissions_total",
				Help:      "Connection attempts by admission outcome",
			},
			[]string{"outcome"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "requests_total",
				Help:      "Station initiated requests by action and result code",
			},
			[]string{"action", "result"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "inbound",
				Name:      "request_duration_seconds",
				Help:      "Time spent handling station initiated requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		OutboundCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "calls_total",
				Help:      "Server initiated calls by action and result code",
			},
			[]string{"action", "result"},
		),
		OutboundCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbound",
				Name:      "call_duration_seconds",
				Help:      "Round trip time of server initiated calls",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"action"},
		),
		MessageLogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "message_log",
			Name:      "dropped_total",
			Help:      "Message log entries dropped because the writer was saturated",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.StationsConnected,
		m.Admissions,
		m.RequestsTotal,
		m.RequestDuration,
		m.OutboundCalls,
		m.OutboundCallDuration,
		m.MessageLogDropped,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SessionOpened increments the connected gauge.
func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.StationsConnected.Inc()
}

// SessionClosed decrements the connected gauge.
func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.StationsConnected.Dec()
}

// Admission counts one admission attempt.
func (m *Metrics) Admission(outcome string) {
	if m == nil {
		return
	}
	m.Admissions.WithLabelValues(outcome).Inc()
}

// ObserveRequest records a dispatched inbound request.
func (m *Metrics) ObserveRequest(action, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(action, result).Inc()
	m.RequestDuration.WithLabelValues(action).Observe(took.Seconds())
}

// ObserveCall records a finished outbound call.
func (m *Metrics) ObserveCall(action, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.OutboundCalls.WithLabelValues(action, result).Inc()
	m.OutboundCallDuration.WithLabelValues(action).Observe(took.Seconds())
}

// MessageLogDrop counts one dropped log entry.
func (m *Metrics) MessageLogDrop() {
	if m == nil {
		return
	}
	m.MessageLogDropped.Inc()
}
