package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_transitions_total",
		Help: "Payment status transitions applied, by target status",
	}, []string{"status"})

	discardedOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_discarded_outcomes_total",
		Help: "Gateway outcomes discarded because the payment was already terminal, by source",
	}, []string{"source"})

	reconcileLoops = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payments_reconcile_loops",
		Help: "Reconciliation loops currently running",
	})

	dispatchFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_dispatch_failures_total",
		Help: "Failed side effect dispatches, by service category",
	}, []string{"category"})

	webhookSignatureFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_webhook_signature_failures_total",
		Help: "Webhooks rejected for an invalid signature, by provider",
	}, []string{"provider"})
)
