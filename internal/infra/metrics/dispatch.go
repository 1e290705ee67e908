package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(notificationsSentTotal, notificationSendFailures) }

var notificationsSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_sent_total",
		Help: "Outbound notifications delivered, labeled by kind.",
	},
	[]string{"kind"},
)

var notificationSendFailures = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "notification_send_failures_total",
		Help: "Notification deliveries that exhausted transport retries.",
	},
)

func IncNotificationSent(kind string) {
	notificationsSentTotal.WithLabelValues(norm(kind)).Inc()
}

func IncNotificationSendFailure() {
	notificationSendFailures.Inc()
}
