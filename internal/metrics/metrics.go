// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhub_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clubhub_http_request_duration_seconds",
			Help:    "HTTP request latency by route and method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)

	AttendanceMarks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhub_attendance_marks_total",
			Help: "Attendance writes by action, method and resulting status",
		},
		[]string{"action", "method", "status"},
	)

	CheckIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhub_self_checkins_total",
			Help: "Self check-in attempts by outcome (present, late, rejected)",
		},
		[]string{"outcome"},
	)

	BulkEntryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clubhub_bulk_mark_entry_failures_total",
			Help: "Bulk mark entries that failed and were reported inline",
		},
	)

	SeededRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clubhub_attendance_seeded_total",
			Help: "Absent attendance rows created when sessions are created",
		},
	)

	AnalyticsCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhub_analytics_cache_total",
			Help: "Analytics cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	QueuePublishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "clubhub_queue_publish_failures_total",
			Help: "Attendance events that could not be published",
		},
	)

	AuditEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clubhub_worker_audit_entries_total",
			Help: "Audit entries processed by the worker by result (stored, dropped, failed)",
		},
		[]string{"result"},
	)
)
