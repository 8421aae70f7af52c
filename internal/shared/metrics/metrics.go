package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Payment metrics
	PaymentOutcomesTotal   *prometheus.CounterVec
	ProviderCallsTotal     *prometheus.CounterVec
	ProviderCallDuration   *prometheus.HistogramVec
	StatusPollsTotal       *prometheus.CounterVec
	FunctionBreakerOpen    *prometheus.GaugeVec
	CheckoutSessionsActive prometheus.Gauge

	// Order metrics
	OrdersCreatedTotal *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg.
// A nil reg registers on the default Prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "storefront"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		// Payment metrics
		PaymentOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "outcomes_total",
				Help:      "Payment analytics outcomes by provider",
			},
			[]string{"provider", "outcome"},
		),
		ProviderCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "provider_calls_total",
				Help:      "Total number of payment provider adapter calls",
			},
			[]string{"provider", "operation", "result"}, // result: success, failure
		),
		ProviderCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "provider_call_duration_seconds",
				Help:      "Payment provider adapter call duration in seconds",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"provider", "operation"},
		),
		StatusPollsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "payment",
				Name:      "status_polls_total",
				Help:      "Total number of payment status polls",
			},
			[]string{"provider"},
		),
		FunctionBreakerOpen: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "functions",
				Name:      "breaker_open",
				Help:      "Hosted function circuit breaker state (1=open, 0=closed)",
			},
			[]string{"function"},
		),
		CheckoutSessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "checkout",
				Name:      "sessions_active",
				Help:      "Number of live checkout sessions",
			},
		),

		// Order metrics
		OrdersCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "order",
				Name:      "created_total",
				Help:      "Total number of orders created",
			},
			[]string{"provider"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	statusStr := statusCodeToString(status)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPaymentOutcome records one analytics outcome.
func (m *Metrics) RecordPaymentOutcome(provider, outcome string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	m.PaymentOutcomesTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordProviderCall records one adapter call.
func (m *Metrics) RecordProviderCall(provider, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.ProviderCallsTotal.WithLabelValues(provider, operation, result).Inc()
	m.ProviderCallDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordStatusPoll records one poller tick.
func (m *Metrics) RecordStatusPoll(provider string) {
	if m == nil {
		return
	}
	m.StatusPollsTotal.WithLabelValues(provider).Inc()
}

// SetBreakerOpen sets the breaker state of a hosted function.
func (m *Metrics) SetBreakerOpen(function string, open bool) {
	if m == nil {
		return
	}
	value := 0.0
	if open {
		value = 1.0
	}
	m.FunctionBreakerOpen.WithLabelValues(function).Set(value)
}

// SetActiveSessions sets the live checkout session count.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.CheckoutSessionsActive.Set(float64(n))
}

// RecordOrderCreated records a created order.
func (m *Metrics) RecordOrderCreated(provider string) {
	if m == nil {
		return
	}
	if provider == "" {
		provider = "none"
	}
	m.OrdersCreatedTotal.WithLabelValues(provider).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
