// Package metrics provides Prometheus metrics for the Forklore service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forklore",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	BranchesForkedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "branch",
			Name:      "forked_total",
			Help:      "Total number of branches forked",
		},
	)

	// VotesTotal tracks vote and unvote operations
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "branch",
			Name:      "votes_total",
			Help:      "Total number of branch vote operations by action",
		},
		[]string{"action"},
	)

	LinkRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "link_request",
			Name:      "transitions_total",
			Help:      "Total number of link request transitions by status",
		},
		[]string{"status"},
	)

	// ChaptersPublishedTotal tracks publications by trigger (manual or scheduled)
	ChaptersPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "chapter",
			Name:      "published_total",
			Help:      "Total number of chapters published by trigger",
		},
		[]string{"trigger"},
	)

	AccessDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "access",
			Name:      "decisions_total",
			Help:      "Total number of chapter access decisions by outcome",
		},
		[]string{"outcome"},
	)

	PurchasesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "commerce",
			Name:      "purchases_total",
			Help:      "Total number of chapter purchases",
		},
	)

	SubscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "commerce",
			Name:      "subscriptions_total",
			Help:      "Total number of subscription changes by action",
		},
		[]string{"action"},
	)

	// SchedulerJobsTotal tracks background sweeps by job and status
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Total number of scheduler job runs by status",
		},
		[]string{"job", "status"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "forklore",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduler job runs in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"job"},
	)

	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	LockAcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "forklore",
			Subsystem: "lock",
			Name:      "acquisitions_total",
			Help:      "Total number of distributed lock attempts by result",
		},
		[]string{"name", "result"},
	)
)

// RecordHTTPRequest records an inbound API request
func RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// RecordSchedulerJob records one scheduler run
func RecordSchedulerJob(job, status string, durationSeconds float64) {
	SchedulerJobsTotal.WithLabelValues(job, status).Inc()
	SchedulerJobDuration.WithLabelValues(job).Observe(durationSeconds)
}
