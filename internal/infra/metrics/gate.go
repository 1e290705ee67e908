package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(gateSkipsTotal, conversationsOpen, conversationsExpiredTotal) }

var gateSkipsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "gate_skips_total",
		Help: "Broker entries left pending because the user's gate was closed.",
	},
	[]string{"kind"},
)

var conversationsOpen = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "conversations_open",
		Help: "Conversations currently holding a user's queue.",
	},
)

var conversationsExpiredTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "conversations_expired_total",
		Help: "Conversations auto-concluded by the expiry sweep.",
	},
)

func IncGateSkip(kind string) {
	gateSkipsTotal.WithLabelValues(norm(kind)).Inc()
}

func SetConversationsOpen(n int) {
	conversationsOpen.Set(float64(n))
}

func AddConversationsExpired(n int) {
	conversationsExpiredTotal.Add(float64(n))
}
