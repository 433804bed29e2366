package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(breakerState) }

var breakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state per upstream (0 closed, 1 half-open, 2 open).",
	},
	[]string{"upstream"},
)

func SetBreakerState(upstream string, state int) {
	breakerState.WithLabelValues(norm(upstream)).Set(float64(state))
}
