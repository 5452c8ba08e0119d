package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Authentication Metrics
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status", "type"}, // success/failure, device/kid/parent/refresh
	)

	// Rate Limiter Metrics
	RateLimitBlocks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pin_rate_limit_blocks_total",
			Help: "Total number of parent-elevation attempts answered 429",
		},
	)

	// Token Metrics
	TokenUsage = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_usage_total",
			Help: "Token lifecycle events by type",
		},
		[]string{"type", "operation"}, // device/kid/parent, issued/refreshed/revoked
	)

	// Session Metrics
	ActiveDeviceSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_device_sessions_total",
			Help: "Current number of active mobile device sessions",
		},
	)

	// Database Metrics
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Duration of database operations",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "collection"},
	)

	// System Metrics
	CPUUsagePercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "system_cpu_usage_percent",
			Help: "Current process host CPU usage",
		},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors by component and reason",
		},
		[]string{"component", "reason"},
	)
)

// TrackDBOperation tracks database operation duration
func TrackDBOperation(operation, collection string) *prometheus.Timer {
	return prometheus.NewTimer(DBOperationDuration.WithLabelValues(operation, collection))
}

// TrackAuthAttempt records authentication attempts
func TrackAuthAttempt(status, authType string) {
	AuthAttempts.WithLabelValues(status, authType).Inc()
}

// TrackTokenUsage records a token lifecycle event
func TrackTokenUsage(tokenType, operation string) {
	TokenUsage.WithLabelValues(tokenType, operation).Inc()
}

// TrackError increments the error counter
func TrackError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}
