package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector handles Prometheus metrics collection.
// Each collector owns its registry so several can coexist in one process.
type MetricsCollector struct {
	serviceName string
	registry    *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	reportsTotal        *prometheus.CounterVec
	reportDuration      prometheus.Histogram
	excludedTotal       *prometheus.CounterVec
	upstreamCallsTotal  *prometheus.CounterVec
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(serviceName string) *MetricsCollector {
	m := &MetricsCollector{
		serviceName: serviceName,
		registry:    prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code", "service"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint", "service"},
		),
		reportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statistics_reports_total",
				Help: "Total number of statistics reports computed",
			},
			[]string{"ambulatorio", "status", "service"},
		),
		reportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "statistics_report_duration_seconds",
				Help:    "Duration of snapshot fetch plus aggregation",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
			},
		),
		excludedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "statistics_excluded_appointments_total",
				Help: "Appointments in scope left out of a report, by reason",
			},
			[]string{"reason", "service"},
		),
		upstreamCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upstream_calls_total",
				Help: "Calls to the clinic backend",
			},
			[]string{"operation", "status", "service"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.reportsTotal,
		m.reportDuration,
		m.excludedTotal,
		m.upstreamCallsTotal,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests
func (m *MetricsCollector) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records HTTP request metrics
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCode, m.serviceName).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint, m.serviceName).Observe(duration.Seconds())
}

// RecordReport records one report computation
func (m *MetricsCollector) RecordReport(site string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.reportsTotal.WithLabelValues(site, status, m.serviceName).Inc()
	m.reportDuration.Observe(duration.Seconds())
}

// RecordExcluded adds excluded appointments for a reason
func (m *MetricsCollector) RecordExcluded(reason string, count int) {
	if count <= 0 {
		return
	}
	m.excludedTotal.WithLabelValues(reason, m.serviceName).Add(float64(count))
}

// RecordUpstreamCall records a call to the clinic backend
func (m *MetricsCollector) RecordUpstreamCall(operation string, success bool) {
	m.upstreamCallsTotal.WithLabelValues(operation, strconv.FormatBool(success), m.serviceName).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
