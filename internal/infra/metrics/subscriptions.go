package metrics

import (
	"trulyinvoice/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		subscriptionsExpiredTotal,
		subscriptionsRenewedTotal,
		entitlementUpdatesTotal,
		quotaRejectionsTotal,
	)
}

var (
	subscriptionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_expired_total",
			Help: "Total number of subscriptions expired by the lifecycle job.",
		},
	)

	subscriptionsRenewedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscriptions_renewed_total",
			Help: "Total number of subscriptions rolled into a new period by the lifecycle job.",
		},
	)

	entitlementUpdatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlement_updates_total",
			Help: "Entitlement updates by tier and billing cycle.",
		},
		[]string{"tier", "cycle"},
	)

	quotaRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Processing requests rejected because the scan quota was exhausted.",
		},
		[]string{"tier"},
	)
)

func IncSubscriptionsExpired(count int) {
	subscriptionsExpiredTotal.Add(float64(count))
}

func IncSubscriptionsRenewed(count int) {
	subscriptionsRenewedTotal.Add(float64(count))
}

func IncEntitlementUpdate(t model.Tier, c model.BillingCycle) {
	entitlementUpdatesTotal.WithLabelValues(string(t), string(c)).Inc()
}

func IncQuotaRejection(t model.Tier) {
	quotaRejectionsTotal.WithLabelValues(string(t)).Inc()
}
