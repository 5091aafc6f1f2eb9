package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the console
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec
	// ServiceUp reports whether the supervised proxy process is running
	ServiceUp prometheus.Gauge
	// ServiceOperations counts supervisor operations by outcome
	ServiceOperations *prometheus.CounterVec
	// QuotaUsedPercent tracks per-model quota usage by account
	QuotaUsedPercent *prometheus.GaugeVec
	// RefreshTotal counts quota refresh results
	RefreshTotal *prometheus.CounterVec
	// RefreshDuration tracks quota refresh latency
	RefreshDuration *prometheus.HistogramVec
	// AccountsVisible tracks how many accounts each source currently lists
	AccountsVisible *prometheus.GaugeVec
	// OAuthSessionsActive tracks live provisioning sessions by provider
	OAuthSessionsActive *prometheus.GaugeVec
	// registry is the custom registry for this metrics instance
	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		ServiceUp: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "service_up",
				Help:      "Whether the supervised proxy process is running (1=up, 0=down)",
			},
		),
		ServiceOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "service_operations_total",
				Help:      "Total number of supervisor operations",
			},
			[]string{"operation", "status"},
		),
		QuotaUsedPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "quota_used_percent",
				Help:      "Current per-model quota usage percentage",
			},
			[]string{"account_id", "provider", "model"},
		),
		RefreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_refresh_total",
				Help:      "Total number of quota refreshes by result",
			},
			[]string{"status"},
		),
		RefreshDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "quota_refresh_duration_seconds",
				Help:      "Quota refresh latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		AccountsVisible: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "accounts_visible",
				Help:      "Number of accounts currently listed per source",
			},
			[]string{"source"},
		),
		OAuthSessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "oauth_sessions_active",
				Help:      "Live provisioning sessions by provider (1=active, 0=idle)",
			},
			[]string{"provider"},
		),
	}

	// Register metrics with custom registry
	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.ServiceUp,
		m.ServiceOperations,
		m.QuotaUsedPercent,
		m.RefreshTotal,
		m.RefreshDuration,
		m.AccountsVisible,
		m.OAuthSessionsActive,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// SetServiceUp sets the proxy process gauge
func (m *Metrics) SetServiceUp(up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	m.ServiceUp.Set(value)
}

// RecordServiceOperation records a supervisor operation
func (m *Metrics) RecordServiceOperation(operation, status string) {
	m.ServiceOperations.WithLabelValues(operation, status).Inc()
}

// SetQuotaUsedPercent sets the usage gauge for one account model
func (m *Metrics) SetQuotaUsedPercent(accountID, provider, model string, percent float64) {
	m.QuotaUsedPercent.WithLabelValues(accountID, provider, model).Set(percent)
}

// ForgetAccount drops every quota series for an account, used when the
// account is removed or its model set changes
func (m *Metrics) ForgetAccount(accountID string) {
	m.QuotaUsedPercent.DeletePartialMatch(prometheus.Labels{"account_id": accountID})
}

// RecordRefresh records one quota refresh with its duration
func (m *Metrics) RecordRefresh(status string, durationSeconds float64) {
	m.RefreshTotal.WithLabelValues(status).Inc()
	m.RefreshDuration.WithLabelValues(status).Observe(durationSeconds)
}

// SetAccountsVisible sets the per-source account count
func (m *Metrics) SetAccountsVisible(source string, count int) {
	m.AccountsVisible.WithLabelValues(source).Set(float64(count))
}

// SetOAuthSessionActive flags whether a provisioning session is live
func (m *Metrics) SetOAuthSessionActive(provider string, active bool) {
	value := 0.0
	if active {
		value = 1.0
	}
	m.OAuthSessionsActive.WithLabelValues(provider).Set(value)
}
