// Package metrics exposes a Prometheus registry for the proxy's core
// signals: probe outcomes, selection switches, and forwarded requests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "zephyr"
)

// Collector owns every metric this proxy exports and the registry
// they live in.
type Collector struct {
	registry *prometheus.Registry

	probeOutcomesTotal *prometheus.CounterVec
	probeLatencySecs   *prometheus.HistogramVec

	switchesTotal prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	activeConnections prometheus.Gauge
	effectiveInterval prometheus.Gauge
}

// NewCollector builds a Collector with its own registry so Go runtime
// metrics aren't mixed into the zephyr-specific scrape unless the
// caller opts in via Registry().
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		probeOutcomesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_outcomes_total",
			Help:      "Count of health probe outcomes per endpoint and status.",
		}, []string{"endpoint", "status"}),
		probeLatencySecs: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_latency_seconds",
			Help:      "Observed probe latency for Healthy/Degraded outcomes.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		}, []string{"endpoint"}),
		switchesTotal: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_switches_total",
			Help:      "Count of current-selection changes.",
		}),
		requestsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forwarded_requests_total",
			Help:      "Count of forwarded client requests per endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		requestDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "forwarded_request_duration_seconds",
			Help:      "Forwarded request duration from accept to response completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Current count of in-flight proxied requests.",
		}),
		effectiveInterval: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "effective_probe_interval_seconds",
			Help:      "Probe interval computed on the most recent orchestrator round.",
		}),
	}
	return c
}

// Registry returns the underlying Prometheus registry, for tests or
// callers that want to merge in other collectors.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler returns the /metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
}

// ObserveProbeOutcome records one probe's status and, if it carried a
// latency, the latency histogram.
func (c *Collector) ObserveProbeOutcome(endpoint, status string, latencyMS uint64, hasLatency bool) {
	c.probeOutcomesTotal.WithLabelValues(endpoint, status).Inc()
	if hasLatency {
		c.probeLatencySecs.WithLabelValues(endpoint).Observe(float64(latencyMS) / 1000)
	}
}

// ObserveSwitch records one current-selection change.
func (c *Collector) ObserveSwitch() {
	c.switchesTotal.Inc()
}

// ObserveRequest records one forwarded request's outcome and duration;
// implements proxy.Recorder.
func (c *Collector) ObserveRequest(endpoint, outcome string, duration time.Duration) {
	c.requestsTotal.WithLabelValues(endpoint, outcome).Inc()
	c.requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// SetActiveConnections publishes the connection tracker's live count.
func (c *Collector) SetActiveConnections(n int) {
	c.activeConnections.Set(float64(n))
}

// SetEffectiveInterval publishes the orchestrator's most recently
// computed probe interval.
func (c *Collector) SetEffectiveInterval(d time.Duration) {
	c.effectiveInterval.Set(d.Seconds())
}
