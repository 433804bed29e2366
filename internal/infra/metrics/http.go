package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(httpRequestDuration) }

var httpRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP handler latency by route pattern and status code.",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"method", "route", "status"},
)

// ObserveHTTP records one request. route must be the router pattern, never
// the raw path.
func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
