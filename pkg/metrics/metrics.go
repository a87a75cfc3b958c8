package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is a no-op.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	cacheRequests      *prometheus.CounterVec
	cacheWriteFailures *prometheus.CounterVec
	authzDecisions     *prometheus.CounterVec
	events             *prometheus.CounterVec
}

func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		cacheRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Read-through cache lookups by outcome.",
		}, []string{"cache", "result"}),
		cacheWriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_write_failures_total",
			Help: "Cache writes the backend did not acknowledge.",
		}, []string{"cache"}),
		authzDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Authorization middleware decisions.",
		}, []string{"rule", "decision"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_events_published_total",
			Help: "User lifecycle events by publish result.",
		}, []string{"type", "result"}),
	}
	reg.MustRegister(
		m.httpInFlight, m.httpRequestsTotal, m.httpRequestDuration,
		m.cacheRequests, m.cacheWriteFailures, m.authzDecisions, m.events,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) CacheResult(cache, result string) {
	if m == nil {
		return
	}
	m.cacheRequests.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) CacheWriteFailed(cache string) {
	if m == nil {
		return
	}
	m.cacheWriteFailures.WithLabelValues(cache).Inc()
}

func (m *Metrics) AuthzDecision(rule, decision string) {
	if m == nil {
		return
	}
	m.authzDecisions.WithLabelValues(rule, decision).Inc()
}

func (m *Metrics) EventPublished(typ, result string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(typ, result).Inc()
}

// Instrument records RPS, latency and in-flight requests per route template.
func (m *Metrics) Instrument() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			m.httpRequestsTotal.WithLabelValues(labels...).Inc()
			return err
		}
	}
}
