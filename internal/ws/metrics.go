package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "argus_ws_connections_active",
		Help: "Number of live websocket connections.",
	})

	wsBroadcastsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_ws_broadcast_sends_total",
		Help: "Total event frames delivered to websocket connections.",
	})

	wsRateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "argus_ws_rate_limited_total",
		Help: "Total inbound messages rejected by the per-connection rate limit.",
	})
)

func init() {
	prometheus.MustRegister(wsConnectionsActive)
	prometheus.MustRegister(wsBroadcastsTotal)
	prometheus.MustRegister(wsRateLimitedTotal)
}
