package jobs

import "github.com/prometheus/client_golang/prometheus"

var (
	tracesReapedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_traces_reaped_total",
		Help: "Total running traces force-failed by the idle reaper.",
	})

	tracesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_traces_swept_total",
		Help: "Total traces deleted by the retention sweeper.",
	})
)

func init() {
	prometheus.MustRegister(tracesReapedTotal)
	prometheus.MustRegister(tracesSweptTotal)
}
