// Package metrics defines the Prometheus instrumentation for the console:
// RPC call outcomes and latency, poll tick counts, and event fan-out volume.
// Collectors are registered against an explicit Registerer so tests can use
// a private registry instead of the process-global default.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles all console collectors. A nil *Metrics is valid and makes
// every method a no-op, so components do not need conditional wiring.
type Metrics struct {
	rpcCalls    *prometheus.CounterVec
	rpcDuration *prometheus.HistogramVec
	pollTicks   *prometheus.CounterVec
	events      *prometheus.CounterVec
	wsClients   prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keepdeck",
			Name:      "rpc_calls_total",
			Help:      "Backend RPC calls by method and outcome.",
		}, []string{"method", "outcome"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "keepdeck",
			Name:      "rpc_call_duration_seconds",
			Help:      "Backend RPC call latency by method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keepdeck",
			Name:      "poll_ticks_total",
			Help:      "Completed refresh passes by poller.",
		}, []string{"poller"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keepdeck",
			Name:      "events_emitted_total",
			Help:      "Typed events broadcast to listeners.",
		}, []string{"type"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "keepdeck",
			Name:      "ws_clients",
			Help:      "Currently connected WebSocket clients.",
		}),
	}

	reg.MustRegister(m.rpcCalls, m.rpcDuration, m.pollTicks, m.events, m.wsClients)
	return m
}

// ObserveRPC records one backend call.
func (m *Metrics) ObserveRPC(method string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.rpcCalls.WithLabelValues(method, outcome).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// IncPollTick records one completed refresh pass for the named poller.
func (m *Metrics) IncPollTick(poller string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(poller).Inc()
}

// IncEvent records one broadcast event.
func (m *Metrics) IncEvent(eventType string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType).Inc()
}

// SetWSClients updates the connected WebSocket client gauge.
func (m *Metrics) SetWSClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
