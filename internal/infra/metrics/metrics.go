// Package metrics exposes Prometheus collectors for the auth engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"gatekeeper/internal/domain/service"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

const namespace = "gatekeeper"

// Registry owns the collectors. A private registry keeps tests independent of the global one.
type Registry struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	reuseDetected prometheus.Counter
	policyChanges *prometheus.CounterVec
	eventFailures *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
}

// NewRegistry builds and registers every collector.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refreshes_total",
			Help:      "Session refresh attempts by outcome.",
		}, []string{"outcome"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_reuse_detected_total",
			Help:      "Rotated session tokens presented again.",
		}),
		policyChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_policy_changes_total",
			Help:      "Accepted token policy changes by action.",
		}, []string{"action"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Security events that could not be published, by event type.",
		}, []string{"type"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.logins, r.refreshes, r.reuseDetected, r.policyChanges, r.eventFailures,
		r.httpRequests, r.httpDuration, r.httpInFlight,
	)

	return r
}

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// Handler serves the exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Registry) ObserveLogin(outcome string) {
	r.logins.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveRefresh(outcome string) {
	r.refreshes.WithLabelValues(outcome).Inc()
}

func (r *Registry) ObserveReuseDetected() {
	r.reuseDetected.Inc()
}

func (r *Registry) ObservePolicyChange(action string) {
	r.policyChanges.WithLabelValues(action).Inc()
}

func (r *Registry) ObserveEventPublishFailure(eventType string) {
	r.eventFailures.WithLabelValues(eventType).Inc()
}

// Middleware records request count, latency and in-flight gauge.
// The route template is used as the path label to keep cardinality bounded.
func (r *Registry) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r.httpInFlight.Inc()
			defer r.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			// Render the error now so the recorded status is the one the client sees.
			if err != nil {
				c.Error(err)
			}
			status := c.Response().Status

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			labels := []string{c.Request().Method, path, strconv.Itoa(status)}
			r.httpRequests.WithLabelValues(labels...).Inc()
			r.httpDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

var _ service.SecurityMetrics = (*Registry)(nil)

// Module provides the registry and binds it as the SecurityMetrics implementation.
var Module = fx.Options(
	fx.Provide(
		NewRegistry,
		func(r *Registry) service.SecurityMetrics { return r },
	),
)
