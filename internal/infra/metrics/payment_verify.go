package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		PaymentVerifyRequests,
		PaymentVerifyDuration,
	)
}

var (
	// Count of verify calls grouped by result and bounded reason.
	// result: ok|fail
	// reason (fail only): bad_request|unauthenticated|signature|forbidden|gateway|entitlement|locked|unknown
	PaymentVerifyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verify_requests_total",
			Help: "Count of /api/razorpay/verify-payment calls by result and reason.",
		},
		[]string{"result", "reason"},
	)

	// Latency of verify handler grouped by result.
	PaymentVerifyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of /api/razorpay/verify-payment handler in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"result"},
	)
)

// ObserveVerify records one verify call. reason is ignored for successful calls.
func ObserveVerify(result, reason string, d time.Duration) {
	if result == "ok" {
		reason = ""
	}
	PaymentVerifyRequests.WithLabelValues(norm(result), norm(reason)).Inc()
	PaymentVerifyDuration.WithLabelValues(norm(result)).Observe(d.Seconds())
}
