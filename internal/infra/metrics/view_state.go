package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(viewStatePushesTotal, viewStateBootstrapTotal) }

var (
	viewStatePushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_view_state_pushes_total",
			Help: "View-state push decisions (sent, skipped, failed).",
		},
		[]string{"result"},
	)

	viewStateBootstrapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_view_state_bootstrap_total",
			Help: "Bootstrap outcomes (adopted_remote, pushed_local, remote_error).",
		},
		[]string{"outcome"},
	)
)

func IncViewStatePush(result string) {
	viewStatePushesTotal.WithLabelValues(norm(result)).Inc()
}

func IncViewStateBootstrap(outcome string) {
	viewStateBootstrapTotal.WithLabelValues(norm(outcome)).Inc()
}
