package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for webhook deliveries.
const (
	OutcomeProcessed = "processed"
	OutcomeDuplicate = "duplicate"
	OutcomeIgnored   = "ignored"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

var (
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_deliveries_total",
		Help: "Webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})

	CheckoutSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_checkout_sessions_created_total",
		Help: "Checkout sessions created through the billing API.",
	})

	SweepReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_sweep_subscriptions_reconciled_total",
		Help: "Subscriptions whose status changed during a sweep batch.",
	})
)
