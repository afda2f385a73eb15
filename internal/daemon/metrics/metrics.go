// Package metrics exposes daemon counters in the Prometheus text format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nicepick"

// Metrics groups the daemon collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessions      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	startup       *prometheus.GaugeVec
	queryDuration prometheus.Histogram
	connections   prometheus.Counter
	protocolErrs  prometheus.Counter
	state         prometheus.Gauge
}

// New registers the daemon collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Picker sessions by outcome",
		}, []string{"outcome"}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "show_rejected_total",
			Help:      "Show requests rejected, by error code",
		}, []string{"code"}),
		startup: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "startup_phase_seconds",
			Help:      "Duration of each daemon startup phase",
		}, []string{"phase"}),
		queryDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Catalog query evaluation latency",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		connections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Accepted IPC connections",
		}),
		protocolErrs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Connections reset because of malformed or out-of-protocol frames",
		}),
		state: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state",
			Help:      "Current supervisor state (0 starting, 1 idle, 2 active, 3 shutting down)",
		}),
	}
}

// SessionEnded counts a finished session ("selected", "dismissed", "disconnected").
func (m *Metrics) SessionEnded(outcome string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(outcome).Inc()
}

// ShowRejected counts a refused Show.
func (m *Metrics) ShowRejected(code string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(code).Inc()
}

// StartupPhase records how long a startup phase took.
func (m *Metrics) StartupPhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.startup.WithLabelValues(phase).Set(d.Seconds())
}

// QueryEvaluated observes one query evaluation.
func (m *Metrics) QueryEvaluated(d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(d.Seconds())
}

// ConnectionAccepted counts an accepted connection.
func (m *Metrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connections.Inc()
}

// ProtocolError counts a connection reset for a protocol violation.
func (m *Metrics) ProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrs.Inc()
}

// SetState records the supervisor state.
func (m *Metrics) SetState(state int) {
	if m == nil {
		return
	}
	m.state.Set(float64(state))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
