package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// webhookNotifications counts dispatched notifications by topic and
	// outcome (handled, duplicate, ignored, failed).
	webhookNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_notifications_total",
			Help: "Payment provider notifications by topic and outcome.",
		},
		[]string{"topic", "outcome"},
	)

	entitlementsGranted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_granted_total",
			Help: "Entitlement rows created from approved payments.",
		},
	)

	entitlementsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_expired_total",
			Help: "Entitlements deactivated by the expiry sweep.",
		},
	)
)

func init() {
	prometheus.MustRegister(webhookNotifications, entitlementsGranted, entitlementsExpired)
}
