// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Default histogram buckets for API latency.
var defaultBuckets = []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics holds all Prometheus metric collectors for the gateway.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	UpstreamDuration  *prometheus.HistogramVec
	UpstreamResponses *prometheus.CounterVec

	AuthFailures  *prometheus.CounterVec
	MockResponses *prometheus.CounterVec
}

// New creates a Metrics instance with a custom registry and all collectors registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		Registry: reg,

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impact_gateway_http_requests_total",
			Help: "Total inbound HTTP requests.",
		}, []string{"method", "status_code", "path_prefix"}),

		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impact_gateway_http_request_duration_seconds",
			Help:    "Inbound HTTP request latency in seconds.",
			Buckets: defaultBuckets,
		}, []string{"method", "status_code", "path_prefix"}),

		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "impact_gateway_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed.",
		}),

		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "impact_gateway_upstream_request_duration_seconds",
			Help:    "Upstream call latency in seconds, by platform resource.",
			Buckets: defaultBuckets,
		}, []string{"method", "resource"}),

		UpstreamResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impact_gateway_upstream_responses_total",
			Help: "Total upstream responses by method, status code and platform resource.",
		}, []string{"method", "status_code", "resource"}),

		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impact_gateway_auth_failures_total",
			Help: "Requests rejected by the bearer check, by reason.",
		}, []string{"reason"}),

		MockResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "impact_gateway_mock_responses_total",
			Help: "Responses served by the in-process mock backend, by resource.",
		}, []string{"resource"}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.UpstreamDuration,
		m.UpstreamResponses,
		m.AuthFailures,
		m.MockResponses,
	)

	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// knownMethods lists the allowed HTTP method label values (bounded cardinality).
var knownMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "DELETE": true,
	"PATCH": true, "HEAD": true, "OPTIONS": true,
}

// NormalizeMethod returns a bounded HTTP method label for Prometheus metrics.
// Non-standard methods are mapped to "other" to prevent cardinality explosion.
func NormalizeMethod(method string) string {
	if knownMethods[method] {
		return method
	}
	return "other"
}

// knownPrefixes lists the allowed path label values (bounded cardinality).
// Longer prefixes come first so the most specific one wins.
var knownPrefixes = []string{
	"/api/v1/auth",
	"/api/v1/opportunities",
	"/api/v1/users",
	"/api/v1/reports",
	"/api/v1/notifications",
	"/api/v1/funding",
	"/api/v1/chat",
	"/api/v1/dashboard",
	"/api/v1/profile",
	"/api/v1/events",
	"/api/v1",
	"/healthz",
	"/gateway/status",
	"/metrics",
}

// NormalizePath returns a bounded path label for Prometheus metrics.
func NormalizePath(path string) string {
	for _, prefix := range knownPrefixes {
		if path == prefix || strings.HasPrefix(path, prefix+"/") || strings.HasPrefix(path, prefix+"?") {
			return prefix
		}
	}
	return "other"
}

// knownResources lists the platform resources used as the upstream
// "resource" label.
var knownResources = map[string]bool{
	"auth": true, "opportunities": true, "users": true, "reports": true,
	"notifications": true, "funding": true, "chat": true, "dashboard": true,
	"profile": true, "events": true,
}

// NormalizeResource returns the platform resource named by the first segment
// of an upstream path, or "other".
func NormalizeResource(path string) string {
	first, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	if knownResources[first] {
		return first
	}
	return "other"
}
