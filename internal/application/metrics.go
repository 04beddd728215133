package application

import "github.com/prometheus/client_golang/prometheus"

var (
	broadcastTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_broadcast_total",
			Help: "Number of events fanned out to sessions, by event type.",
		},
		[]string{"event"},
	)

	overflowKickTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_overflow_kick_total",
			Help: "Number of sessions disconnected because their send buffer overflowed.",
		},
	)

	typingSweepTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_typing_sweep_expired_total",
			Help: "Number of typing states expired by the background sweep.",
		},
	)
)

// RegisterMetrics 在 main 里挂到 prometheus registry
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(broadcastTotal, overflowKickTotal, typingSweepTotal)
}
