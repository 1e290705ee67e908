package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsProcessedTotal, jobRetriesTotal, jobHandlerLatencyMs) }

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Jobs that reached a terminal state, labeled by kind and status.",
	},
	[]string{"kind", "status"}, // 'completed', 'failed', 'expired'
)

var jobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_retries_total",
		Help: "Retry decisions taken, labeled by failure kind.",
	},
	[]string{"failure_kind"},
)

var jobHandlerLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "job_handler_latency_ms",
		Help:    "Classification handler latency distribution in milliseconds.",
		Buckets: []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000},
	},
	[]string{"kind", "success"},
)

func IncJobProcessed(kind, status string) {
	jobsProcessedTotal.WithLabelValues(norm(kind), norm(status)).Inc()
}

func IncJobRetry(failureKind string) {
	jobRetriesTotal.WithLabelValues(norm(failureKind)).Inc()
}

func ObserveHandlerLatency(kind string, latencyMs int, success bool) {
	s := "false"
	if success {
		s = "true"
	}
	jobHandlerLatencyMs.WithLabelValues(norm(kind), s).Observe(float64(latencyMs))
}
