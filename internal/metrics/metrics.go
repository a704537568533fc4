// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pms_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// AuthzDecisions counts mutation authorizer outcomes.
	AuthzDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_authz_decisions_total",
			Help: "Mutation authorization decisions by action and outcome",
		},
		[]string{"action", "outcome"},
	)
	// HistoryRows counts audit rows written, by owner and action.
	HistoryRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_history_rows_total",
			Help: "Audit history rows written",
		},
		[]string{"owner", "action"},
	)
	HoursLogged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pms_hours_logged_total",
			Help: "Sum of hours recorded through time logs",
		},
	)
	ActivityEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_activity_events_total",
			Help: "Activity events dispatched by sink and status",
		},
		[]string{"sink", "status"},
	)
	// RateLimited counts requests rejected by a named per-IP limiter.
	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pms_rate_limited_total",
			Help: "Requests rejected with 429 by limiter",
		},
		[]string{"limiter"},
	)
)
