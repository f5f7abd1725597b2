package payment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the payer.
type Metrics struct {
	paymentsTotal      *prometheus.CounterVec
	paymentDuration    *prometheus.HistogramVec
	jettonLookupsTotal *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		paymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonpay_payments_total",
				Help: "Total number of payment requests by asset and status",
			},
			[]string{"asset", "status"},
		),
		paymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tonpay_payment_duration_seconds",
				Help:    "Duration of payment requests in seconds, including wallet approval",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"asset"},
		),
		jettonLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tonpay_jetton_wallet_lookups_total",
				Help: "Total number of jetton wallet address lookups by status",
			},
			[]string{"status"},
		),
	}
}

// RecordPayment records the outcome and duration of a payment request.
func (m *Metrics) RecordPayment(asset Asset, status string, seconds float64) {
	m.paymentsTotal.WithLabelValues(string(asset), status).Inc()
	m.paymentDuration.WithLabelValues(string(asset)).Observe(seconds)
}

// RecordJettonLookup records a jetton wallet address lookup.
func (m *Metrics) RecordJettonLookup(status string) {
	m.jettonLookupsTotal.WithLabelValues(status).Inc()
}
