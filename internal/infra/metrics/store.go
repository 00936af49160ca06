package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(storeOpsTotal, storeDiscardedTotal) }

var (
	storeOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_store_ops_total",
			Help: "Durable local store operations by backend, op and result.",
		},
		[]string{"backend", "op", "result"}, // e.g., backend="redis", op="get", result="miss"
	)

	storeDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobsync_store_discarded_total",
			Help: "Persisted entries ignored because they could not be decoded.",
		},
		[]string{"record"},
	)
)

func IncStoreOp(backend, op, result string) {
	storeOpsTotal.WithLabelValues(norm(backend), norm(op), norm(result)).Inc()
}

func IncStoreDiscarded(record string) {
	storeDiscardedTotal.WithLabelValues(norm(record)).Inc()
}
