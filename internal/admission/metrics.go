package admission

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for admission outcomes.
var (
	admissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pollengate_admission_decisions_total",
			Help: "Admission decisions by outcome",
		},
		[]string{"outcome"},
	)

	settleFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pollengate_settle_failures_total",
			Help: "Settle calls that failed after retry",
		},
	)

	cleanupRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pollengate_cleanup_retries_total",
			Help: "Compensating release/append calls that needed a retry",
		},
	)
)

// Outcome labels for admissionDecisions.
const (
	outcomeAdmitted    = "admitted"
	outcomeBudget      = "budget_exhausted"
	outcomeConcurrency = "concurrent_request"
	outcomeBalance     = "insufficient_balance"
	outcomeUnavailable = "unavailable"
)
