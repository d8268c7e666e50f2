package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics holds the Prometheus collectors for the billing engine.
type BillingMetrics struct {
	BillingCyclesProcessed *prometheus.CounterVec
	InvoicesGenerated      prometheus.Counter
	PaymentsTotal          *prometheus.CounterVec
	WebhooksTotal          *prometheus.CounterVec
	DunningCancellations   prometheus.Counter
	ProviderCallDuration   *prometheus.HistogramVec
	JobRunsTotal           *prometheus.CounterVec
}

// NewBillingMetrics creates and registers the collectors on registry.
func NewBillingMetrics(registry prometheus.Registerer) *BillingMetrics {
	m := &BillingMetrics{
		BillingCyclesProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_cycles_processed_total",
				Help: "Subscriptions processed by the billing run, by result",
			},
			[]string{"result"},
		),
		InvoicesGenerated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_invoices_generated_total",
				Help: "Invoices generated from billing cycles",
			},
		),
		PaymentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_payments_total",
				Help: "Payment attempts by provider and resulting status",
			},
			[]string{"provider", "status"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhooks_total",
				Help: "Provider webhooks received by provider and result",
			},
			[]string{"provider", "result"},
		),
		DunningCancellations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "billing_dunning_cancellations_total",
				Help: "Subscriptions cancelled by dunning",
			},
		),
		ProviderCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "billing_provider_call_duration_seconds",
				Help:    "Latency of payment provider calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),
		JobRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_job_runs_total",
				Help: "Scheduled billing job runs by job and result",
			},
			[]string{"job", "result"},
		),
	}

	registry.MustRegister(
		m.BillingCyclesProcessed,
		m.InvoicesGenerated,
		m.PaymentsTotal,
		m.WebhooksTotal,
		m.DunningCancellations,
		m.ProviderCallDuration,
		m.JobRunsTotal,
	)
	return m
}
