// ABOUTME: Prometheus collectors for tool calls, active sessions, and backend retries.
// ABOUTME: Uses a private registry so tests and multiple servers never collide.

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "instantly_mcp"

// Metrics holds the server's collectors.
type Metrics struct {
	registry       *prometheus.Registry
	toolCalls      *prometheus.CounterVec
	toolLatency    *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	backendRetries *prometheus.CounterVec
}

// New creates and registers all collectors, including Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls by tool and outcome kind",
		}, []string{"tool", "kind"}),
		toolLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency including backend round trips",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Active HTTP sessions",
		}),
		backendRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_retries_total",
			Help:      "Retried Instantly API requests by method",
		}, []string{"method"}),
	}

	m.registry.MustRegister(
		m.toolCalls,
		m.toolLatency,
		m.activeSessions,
		m.backendRetries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveToolCall records one completed tool call.
func (m *Metrics) ObserveToolCall(tool, kind string, duration time.Duration) {
	m.toolCalls.WithLabelValues(tool, kind).Inc()
	m.toolLatency.WithLabelValues(tool).Observe(duration.Seconds())
}

// SetActiveSessions sets the active session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// BackendRetry counts one retried backend request.
func (m *Metrics) BackendRetry(method, _ string, _ int) {
	m.backendRetries.WithLabelValues(method).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
