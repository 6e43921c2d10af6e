package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	blockedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kia_bridge_api_calls_blocked_total",
			Help: "Outbound calls blocked by the local rate budget or a cooldown",
		},
	)
	lastStatusGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "kia_bridge_api_last_status_code",
			Help: "Last HTTP status code observed from the owners API",
		},
	)
)

// MetricsCollectors exposes the rate-guard collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{blockedCounter, lastStatusGauge}
}
