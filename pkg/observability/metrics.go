// Package observability provides metrics capabilities for members-db.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all members-db metrics.
const metricsNamespace = "members_db"

// OAuth2 flow metrics.
var (
	// FlowsStartedTotal counts started authorization flows.
	FlowsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "oauth2_flows_started_total",
			Help:      "Total OAuth2 authorization flows started",
		},
	)

	// FlowsCompletedTotal counts finished authorization flows by status.
	FlowsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "oauth2_flows_completed_total",
			Help:      "Total OAuth2 authorization flows completed",
		},
		[]string{"status"},
	)

	// TokenRefreshesTotal counts token refreshes by status.
	TokenRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "token_refreshes_total",
			Help:      "Total OAuth2 token refreshes",
		},
		[]string{"status"},
	)
)

// Directory metrics.
var (
	// DirectoryQueriesTotal counts directory queries by operation and status.
	DirectoryQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "directory_queries_total",
			Help:      "Total directory queries",
		},
		[]string{"operation", "status"},
	)

	// DirectoryQueryDuration measures the duration of directory queries in seconds.
	DirectoryQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "directory_query_duration_seconds",
			Help:      "Duration of directory queries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)
)

// Request metrics.
var (
	// RequestsTotal counts HTTP requests by route and status code.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Total HTTP requests processed",
		},
		[]string{"route", "status"},
	)
)

func init() {
	// Register all metrics with the default registry.
	prometheus.MustRegister(
		// OAuth2 flow metrics
		FlowsStartedTotal,
		FlowsCompletedTotal,
		TokenRefreshesTotal,
		// Directory metrics
		DirectoryQueriesTotal,
		DirectoryQueryDuration,
		// Request metrics
		RequestsTotal,
	)
}
