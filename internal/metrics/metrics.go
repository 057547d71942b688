package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 会话与 HTTP 指标，通过 /metrics 暴露
var (
	SessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsession_sessions_total",
			Help: "Total number of command batches by strategy and outcome.",
		},
		[]string{"kind", "strategy", "status"},
	)
	EntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsession_entries_total",
			Help: "Total number of session entries by type.",
		},
		[]string{"type"},
	)
	DeadlineTeardowns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "devsession_deadline_teardowns_total",
			Help: "Sessions forcibly closed by the batch deadline.",
		},
	)
	ConnectFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsession_connect_failures_total",
			Help: "SSH connection failures by stage.",
		},
		[]string{"stage"},
	)
	BatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devsession_batch_duration_seconds",
			Help:    "Command batch duration in seconds, connect included.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
		[]string{"strategy"},
	)
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "devsession_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "devsession_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

func init() {
	prometheus.MustRegister(
		SessionsTotal,
		EntriesTotal,
		DeadlineTeardowns,
		ConnectFailures,
		BatchDuration,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
