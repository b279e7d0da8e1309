package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileDriftCents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "codenest",
		Subsystem: "reconciliation",
		Name:      "drift_cents",
		Help:      "Deposits minus available balances and custody, in cents, from the last check.",
	})

	reconcileJournalDriftCents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "codenest",
		Subsystem: "reconciliation",
		Name:      "journal_drift_cents",
		Help:      "Available balances minus journal net, in cents, from the last check.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "codenest",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation checks in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "codenest",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileDriftCents,
		reconcileJournalDriftCents,
		reconcileDuration,
		reconcileErrors,
	)
}
