// Package metrics holds the Prometheus collectors for the causal service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so tests and multiple servers in one process do
// not collide on the default registerer.
type Metrics struct {
	registry *prometheus.Registry

	Queries        *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	Graphs         prometheus.Gauge
	CacheLookups   *prometheus.CounterVec
	SearchRounds   prometheus.Histogram
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
	JanitorRemoved prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "causal_queries_total",
			Help: "Causal queries by operation and outcome status",
		}, []string{"operation", "status"}),
		QueryDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "causal_query_duration_seconds",
			Help:    "Causal query latency by operation",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"operation"}),
		Graphs: f.NewGauge(prometheus.GaugeOpts{
			Name: "causal_graphs",
			Help: "Number of registered graphs",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "causal_effect_cache_lookups_total",
			Help: "Effect cache lookups by result (hit, miss)",
		}, []string{"result"}),
		SearchRounds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "causal_adjustment_search_iterations",
			Help:    "Candidate sets tested per adjustment set search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "causal_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "code"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "causal_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		JanitorRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "causal_effect_cache_expired_total",
			Help: "Effect cache entries removed by the janitor",
		}),
	}
}

// ObserveQuery records one engine call.
func (m *Metrics) ObserveQuery(operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Queries.WithLabelValues(operation, status).Inc()
	m.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHTTP(method, route string, code int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
