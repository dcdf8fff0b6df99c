package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuoteSubmissionsTotal counts quote relay outcomes (submitted, rejected, transient, in_flight).
	QuoteSubmissionsTotal *prometheus.CounterVec
	// PaymentHandoffsTotal counts instant-pay hand-offs by provider and result.
	PaymentHandoffsTotal *prometheus.CounterVec
	// PaymentCallbacksTotal counts widget completion callbacks by outcome.
	PaymentCallbacksTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// ValidationFailuresTotal counts rejected submissions by failure kind.
	ValidationFailuresTotal *prometheus.CounterVec
	// RelayLatency records quote relay round trips in milliseconds.
	RelayLatency *prometheus.HistogramVec
	// SubmissionsInFlight is the number of quote submissions currently awaiting the relay.
	SubmissionsInFlight prometheus.Gauge
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuoteSubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_submissions_total",
			Help:      "Count of quote submission outcomes.",
		}, []string{"result"})
		PaymentHandoffsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_handoffs_total",
			Help:      "Count of instant-pay hand-offs by outcome.",
		}, []string{"provider", "result"})
		PaymentCallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_callbacks_total",
			Help:      "Count of payment widget callbacks by outcome.",
		}, []string{"outcome"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		ValidationFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Count of submissions rejected by validation, by kind.",
		}, []string{"kind"})
		RelayLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "quote_relay_duration_ms",
			Help:      "Latency for quote relay calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		SubmissionsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quote_submissions_in_flight",
			Help:      "Quote submissions currently waiting on the relay.",
		})

		registerOrReuse(reg, &QuoteSubmissionsTotal)
		registerOrReuse(reg, &PaymentHandoffsTotal)
		registerOrReuse(reg, &PaymentCallbacksTotal)
		registerOrReuse(reg, &PaymentWebhookTotal)
		registerOrReuse(reg, &ValidationFailuresTotal)
		registerOrReuse(reg, &RelayLatency)
		registerOrReuse(reg, &SubmissionsInFlight)
	})
}
