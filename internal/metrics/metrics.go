package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts HTTP requests handled by the service.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// JobsDispatchedTotal counts jobs submitted to the execution service.
	JobsDispatchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_dispatched_total",
			Help: "Total number of jobs submitted to the execution service.",
		},
	)

	// JobPollAttemptsTotal counts status queries issued while awaiting jobs.
	JobPollAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_poll_attempts_total",
			Help: "Total number of poll attempts against the execution service.",
		},
	)

	// BatchItemsTotal counts processed batch items by outcome.
	BatchItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_items_total",
			Help: "Total number of batch items processed, by outcome.",
		},
		[]string{"operation", "status"},
	)

	// BatchesTotal counts completed batches by overall status.
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batches_total",
			Help: "Total number of completed batches, by overall status.",
		},
		[]string{"operation", "status"},
	)

	// ReportSendFailuresTotal counts report deliveries that failed.
	ReportSendFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_send_failures_total",
			Help: "Total number of batch reports the notifier failed to deliver.",
		},
	)

	// IsLeader marks whether this node currently owns the scheduler.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the scheduler leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)
