package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(subscriptionEventsTotal, promoRedemptionsTotal)
}

var (
	subscriptionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_events_total",
			Help: "Subscription lifecycle events (started/paused/cancelled/expired).",
		},
		[]string{"event"},
	)

	promoRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promo_redemptions_total",
			Help: "Promo code redemption attempts by result.",
		},
		[]string{"result"},
	)
)

func IncSubscription(event string) {
	subscriptionEventsTotal.WithLabelValues(norm(event)).Inc()
}

func IncPromoRedemption(result string) {
	promoRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}
