package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailsbuddy_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trailsbuddy_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ContestsSettledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailsbuddy_contests_settled_total",
			Help: "Contests finalized by the settlement scheduler",
		},
		[]string{"outcome"}, // ended, cancelled, failed
	)

	PrizesCreditedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailsbuddy_prizes_credited_total",
			Help: "Prize credits written by settlement",
		},
	)

	WalletTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailsbuddy_wallet_transactions_total",
			Help: "Ledger rows written, by transaction type",
		},
		[]string{"type"},
	)

	AnswersSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailsbuddy_answers_submitted_total",
			Help: "Quiz answers submitted",
		},
		[]string{"correct"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailsbuddy_notifications_total",
			Help: "Notification requests by final dispatch status",
		},
		[]string{"status"},
	)

	NotificationQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trailsbuddy_notification_queue_length",
			Help: "Current length of the outbound notification queue",
		},
	)

	SettlementTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "trailsbuddy_settlement_tick_duration_seconds",
			Help:    "Duration of one settlement scheduler tick",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordSettlement(outcome string) {
	ContestsSettledTotal.WithLabelValues(outcome).Inc()
}

func RecordWalletTransaction(txType string) {
	WalletTransactionsTotal.WithLabelValues(txType).Inc()
}

func RecordAnswer(correct bool) {
	if correct {
		AnswersSubmittedTotal.WithLabelValues("true").Inc()
	} else {
		AnswersSubmittedTotal.WithLabelValues("false").Inc()
	}
}

func RecordNotification(status string) {
	NotificationsTotal.WithLabelValues(status).Inc()
}
