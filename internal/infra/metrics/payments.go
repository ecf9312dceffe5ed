package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

func init() {
	register(
		purchasesTotal,
		purchaseRevenueTotal,
		refundsTotal,
	)
}

var (
	purchasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchases_total",
			Help: "Purchases by status (pending/completed/failed/cancelled).",
		},
		[]string{"status"},
	)

	purchaseRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "purchase_revenue_total",
			Help: "The total monetary value of completed purchases, labeled by currency.",
		},
		[]string{"currency"},
	)

	refundsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refunds_total",
			Help: "Refunded purchases, labeled by currency.",
		},
		[]string{"currency"},
	)
)

func IncPurchase(status string) {
	purchasesTotal.WithLabelValues(norm(status)).Inc()
}

func AddRevenue(currency string, amount decimal.Decimal) {
	f, _ := amount.Float64()
	purchaseRevenueTotal.WithLabelValues(norm(currency)).Add(f)
}

func IncRefund(currency string) {
	refundsTotal.WithLabelValues(norm(currency)).Inc()
}
