package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arifos_bridge"

// Metrics holds the Prometheus collectors of the bridge. A nil *Metrics is valid and records
// nothing, so components can take one unconditionally.
type Metrics struct {
	RPCCalls        *prometheus.CounterVec
	RPCDuration     *prometheus.HistogramVec
	SkippedEvents   *prometheus.CounterVec
	Handshakes      *prometheus.CounterVec
	HandshakeTime   prometheus.Histogram
	Verdicts        *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec
	Routes          *prometheus.CounterVec
	HTTPRequests    *prometheus.CounterVec
	HTTPRateLimited prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		RPCCalls: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "calls_total",
				Help:      "Total number of JSON-RPC calls by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		RPCDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "call_duration_seconds",
				Help:      "JSON-RPC call latency in seconds, including reading the whole reply",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"method"},
		),
		SkippedEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "skipped_events_total",
				Help:      "Event-stream events ignored without failing the call",
			},
			[]string{"reason"},
		),
		Handshakes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "handshakes_total",
				Help:      "Completed initialize handshakes by session origin",
			},
			[]string{"origin"}, // "server" or "synthetic"
		),
		HandshakeTime: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "session",
				Name:      "handshake_duration_seconds",
				Help:      "Initialize handshake latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
		Verdicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "judge",
				Name:      "verdicts_total",
				Help:      "Normalized evaluation results by verdict and stage",
			},
			[]string{"verdict", "stage"},
		),
		PhaseDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "judge",
				Name:      "phase_duration_seconds",
				Help:      "Evaluation latency in seconds by phase",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"phase"}, // "session", "call" or "total"
		),
		Routes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "router",
				Name:      "routes_total",
				Help:      "Messages routed by selected tool",
			},
			[]string{"tool"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Requests served by the bridge HTTP surface",
			},
			[]string{"route", "status"},
		),
		HTTPRateLimited: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the inbound rate limiter",
			},
		),
	}
}

// ObserveCall records one finished JSON-RPC call.
func (m *Metrics) ObserveCall(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RPCCalls.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// SkippedEvent records an ignored event-stream event.
func (m *Metrics) SkippedEvent(reason string) {
	if m == nil {
		return
	}
	m.SkippedEvents.WithLabelValues(reason).Inc()
}

// ObserveHandshake records one finished initialize handshake.
func (m *Metrics) ObserveHandshake(synthetic bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	origin := "server"
	if synthetic {
		origin = "synthetic"
	}
	m.Handshakes.WithLabelValues(origin).Inc()
	m.HandshakeTime.Observe(elapsed.Seconds())
}

// ObserveVerdict records a normalized evaluation result.
func (m *Metrics) ObserveVerdict(verdict, stage string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict, stage).Inc()
}

// ObservePhase records the duration of one evaluation phase.
func (m *Metrics) ObservePhase(phase string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
}

// ObserveRoute records a routing decision.
func (m *Metrics) ObserveRoute(tool string) {
	if m == nil {
		return
	}
	m.Routes.WithLabelValues(tool).Inc()
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, status string) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, status).Inc()
}

// RateLimited records one rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.HTTPRateLimited.Inc()
}
