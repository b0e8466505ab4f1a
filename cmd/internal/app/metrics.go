package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/cmd/internal/realtime"
	"vigil/cmd/internal/registry"
)

// Metrics owns the Prometheus registry and the service-level instruments.
type Metrics struct {
	reg *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// NewMetrics builds the registry with process/runtime collectors plus the
// HTTP instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vigil",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, path pattern, and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "vigil",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by method and path pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(m.httpRequests, m.httpDuration)
	return m
}

// ObserveState registers gauges over the live registry and broadcaster so
// session and watch counts are scraped without bookkeeping in the hot path.
func (m *Metrics) ObserveState(r *registry.Registry, b *realtime.Broadcaster) {
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "vigil",
			Name:      "users_with_sessions",
			Help:      "Users with at least one tracked session entry.",
		}, func() float64 {
			users, _ := r.Stats()
			return float64(users)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "vigil",
			Name:      "sessions_active",
			Help:      "Active sessions across all users.",
		}, func() float64 {
			_, sessions := r.Stats()
			return float64(sessions)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "vigil",
			Name:      "watches_open",
			Help:      "Open watch subscriptions.",
		}, func() float64 {
			return float64(b.WatchCount())
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "watch_updates_dropped_total",
			Help:      "Watch updates dropped under backpressure.",
		}, func() float64 {
			return float64(b.Dropped())
		}),
	)
}

// Handler serves the /metrics scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
