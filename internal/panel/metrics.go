package panel

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the panel's Prometheus collectors. Each Metrics owns its
// registry so several servers (tests) can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	graphBuilds *prometheus.CounterVec
	graphNodes  prometheus.Histogram
	storeErrors prometheus.Counter
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfgraph_http_requests_total",
			Help: "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wfgraph_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		graphBuilds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfgraph_graph_builds_total",
			Help: "Graph builds by mode (definition, execution) and result.",
		}, []string{"mode", "result"}),
		graphNodes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wfgraph_graph_nodes",
			Help:    "Node count of built graphs.",
			Buckets: prometheus.ExponentialBuckets(4, 2, 8),
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wfgraph_store_errors_total",
			Help: "Store operations that failed.",
		}),
	}
	m.registry.MustRegister(m.requests, m.duration, m.graphBuilds, m.graphNodes, m.storeErrors)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) observeRequest(route, method string, code int, elapsed time.Duration) {
	m.requests.With(prometheus.Labels{
		"route":  route,
		"method": method,
		"code":   strconv.Itoa(code),
	}).Inc()
	m.duration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeBuild(mode string, nodes int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.graphBuilds.WithLabelValues(mode, result).Inc()
	if err == nil {
		m.graphNodes.Observe(float64(nodes))
	}
}
