package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		ordersTotal,
		paymentsTotal,
		paymentsRevenueTotal,
	)
}

var (
	ordersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_created_total",
			Help: "Gateway orders by tier, billing cycle and result (ok/error).",
		},
		[]string{"tier", "cycle", "result"},
	)

	paymentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_total",
			Help: "Payments by status (created/paid/failed).",
		},
		[]string{"status"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_paise_total",
			Help: "The total value of verified payments in minor units, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncOrder(tier, cycle, result string) {
	ordersTotal.WithLabelValues(norm(tier), norm(cycle), norm(result)).Inc()
}

func IncPayment(status string) {
	paymentsTotal.WithLabelValues(norm(status)).Inc()
}

func AddPaymentRevenue(currency string, amount int64) {
	paymentsRevenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}
