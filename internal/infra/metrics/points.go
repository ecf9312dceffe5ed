package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		consumesTotal,
		pointsSpentTotal,
		monthlyGrantsTotal,
	)
}

var (
	consumesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "points_consumes_total",
			Help: "Service consumption attempts by service and outcome (ok/insufficient/error).",
		},
		[]string{"service", "outcome"},
	)

	pointsSpentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_spent_total",
			Help: "Total points deducted for metered services.",
		},
	)

	monthlyGrantsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "points_monthly_grants_total",
			Help: "Monthly subscription grants applied by reconciliation.",
		},
	)
)

func IncConsume(service, outcome string) {
	consumesTotal.WithLabelValues(norm(service), norm(outcome)).Inc()
}

func AddPointsSpent(points int64) {
	pointsSpentTotal.Add(float64(points))
}

func IncMonthlyGrant() {
	monthlyGrantsTotal.Inc()
}
