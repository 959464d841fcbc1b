package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business counters for the reconciliation path. LedgerMutationFailures in
// particular backs alerting: each increment is a paid-but-uncredited user.
var (
	ReconcileOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "credits",
		Name:      "reconcile_outcomes_total",
		Help:      "Reconciled notifications partitioned by provider, channel, outcome and whether a state transition happened.",
	}, []string{"provider", "channel", "outcome", "transitioned"})

	LedgerMutationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "credits",
		Name:      "ledger_mutation_failures_total",
		Help:      "Balance credits that failed after a transaction was marked completed. Requires manual reconciliation.",
	})
)
