package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the order flow counters.
const (
	OutcomeApplied   = "applied"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
	OutcomeSuccess   = "success"
	OutcomeReplayed  = "replayed"
)

// OrderFlowMetrics tracks checkout, webhook and courier gateway activity.
type OrderFlowMetrics struct {
	webhookEvents   *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
	gatewayRequests *prometheus.CounterVec
	gatewayRetries  *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	checkouts       *prometheus.CounterVec
	alerts          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
}

// NewOrderFlowMetrics registers the order flow metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewOrderFlowMetrics(reg prometheus.Registerer) *OrderFlowMetrics {
	if reg == nil {
		return &OrderFlowMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook events received, by provider, event type and outcome.",
	}, []string{"provider", "type", "outcome"})
	webhookLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_payment_latency_seconds",
		Help:    "Delay between order creation and payment confirmation.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"provider"})
	gatewayRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_requests_total",
		Help: "Outbound provider calls, by provider, operation and outcome.",
	}, []string{"provider", "operation", "outcome"})
	gatewayRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_retries_total",
		Help: "Retried outbound provider calls.",
	}, []string{"provider", "operation"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_request_duration_seconds",
		Help:    "Duration of outbound provider calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider", "operation"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_requests_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	alerts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "order_alerts_total",
		Help: "Operational alerts raised while reconciling orders.",
	}, []string{"kind"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests served, by method, route and status.",
	}, []string{"method", "route", "status"})
	reg.MustRegister(webhookEvents, webhookLatency, gatewayRequests, gatewayRetries, gatewayDuration, checkouts, alerts, httpRequests)
	return &OrderFlowMetrics{
		webhookEvents:   webhookEvents,
		webhookLatency:  webhookLatency,
		gatewayRequests: gatewayRequests,
		gatewayRetries:  gatewayRetries,
		gatewayDuration: gatewayDuration,
		checkouts:       checkouts,
		alerts:          alerts,
		httpRequests:    httpRequests,
	}
}

// IncWebhookEvent counts one processed webhook event.
func (m *OrderFlowMetrics) IncWebhookEvent(provider, eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObservePaymentLatency records how long an order waited for its payment confirmation.
func (m *OrderFlowMetrics) ObservePaymentLatency(provider string, latency time.Duration) {
	if m == nil || m.webhookLatency == nil || latency < 0 {
		return
	}
	m.webhookLatency.WithLabelValues(normalizeLabel(provider)).Observe(latency.Seconds())
}

// ObserveGatewayCall records one outbound call and its outcome.
func (m *OrderFlowMetrics) ObserveGatewayCall(provider, operation, outcome string, duration time.Duration) {
	if m == nil || m.gatewayRequests == nil {
		return
	}
	m.gatewayRequests.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation), normalizeLabel(outcome)).Inc()
	m.gatewayDuration.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Observe(duration.Seconds())
}

// IncGatewayRetry counts a retried outbound call.
func (m *OrderFlowMetrics) IncGatewayRetry(provider, operation string) {
	if m == nil || m.gatewayRetries == nil {
		return
	}
	m.gatewayRetries.WithLabelValues(normalizeLabel(provider), normalizeLabel(operation)).Inc()
}

// IncCheckout counts a checkout attempt.
func (m *OrderFlowMetrics) IncCheckout(outcome string) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncAlert counts an operational alert.
func (m *OrderFlowMetrics) IncAlert(kind string) {
	if m == nil || m.alerts == nil {
		return
	}
	m.alerts.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncHTTPRequest counts a served request.
func (m *OrderFlowMetrics) IncHTTPRequest(method, route string, status int) {
	if m == nil || m.httpRequests == nil {
		return
	}
	m.httpRequests.WithLabelValues(normalizeLabel(method), normalizeLabel(route), strconv.Itoa(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
