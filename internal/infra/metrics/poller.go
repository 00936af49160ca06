package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(pollAttemptsTotal, pollDelaySeconds, activePollLoops)
}

var (
	pollAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_poll_attempts_total",
			Help: "Status polls by loop name and result (changed, unchanged, error, stopped).",
		},
		[]string{"loop", "result"},
	)

	pollDelaySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobsync_poll_delay_seconds",
			Help:    "Scheduled delay before the next poll.",
			Buckets: []float64{0.5, 1, 2, 4, 8, 12, 20, 30, 45},
		},
		[]string{"loop", "visibility"},
	)

	activePollLoops = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobsync_poll_loops_active",
			Help: "Poll loops currently running.",
		},
		[]string{"loop"},
	)
)

func IncPollAttempt(loop, result string) {
	pollAttemptsTotal.WithLabelValues(norm(loop), norm(result)).Inc()
}

func ObservePollDelay(loop string, hidden bool, d time.Duration) {
	vis := "visible"
	if hidden {
		vis = "hidden"
	}
	pollDelaySeconds.WithLabelValues(norm(loop), vis).Observe(d.Seconds())
}

func PollLoopStarted(loop string) { activePollLoops.WithLabelValues(norm(loop)).Inc() }
func PollLoopStopped(loop string) { activePollLoops.WithLabelValues(norm(loop)).Dec() }
