package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSubmittedTotal, jobsSettledTotal, confirmOutcomesTotal) }

var (
	jobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_jobs_submitted_total",
			Help: "Jobs submitted from this client, labeled by kind and outcome.",
		},
		[]string{"kind", "outcome"}, // 'accepted', 'rejected'
	)

	jobsSettledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_jobs_settled_total",
			Help: "Jobs whose polling reached a terminal status, labeled by kind and status.",
		},
		[]string{"kind", "status"},
	)

	confirmOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_confirm_outcomes_total",
			Help: "Upload confirm attempts by outcome (confirmed, blocked_locally, not_ready, error).",
		},
		[]string{"kind", "outcome"},
	)
)

func IncJobSubmitted(kind, outcome string) {
	jobsSubmittedTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}

func IncJobSettled(kind, status string) {
	jobsSettledTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncConfirm(kind, outcome string) {
	confirmOutcomesTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}
