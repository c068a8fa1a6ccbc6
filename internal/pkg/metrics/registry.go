package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Identity store metrics
var (
	// DBOperations tracks total store operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_db_operations_total",
			Help: "Total store operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks store operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "sessiongate_db_operation_duration_ms",
			Help:                            "Store operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "sessiongate_db_rows_affected",
			Help:                            "Number of rows affected by store write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks store errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_db_errors_total",
			Help: "Total store errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)

	// StoredUsers tracks the number of user records held by the store
	StoredUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessiongate_stored_users",
			Help: "Current number of users in the identity store",
		},
		[]string{"repo"},
	)
)

// Identity resolution and credential metrics
var (
	// IdentityResolutions counts resolver outcomes (updated, linked, created, failed)
	IdentityResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_identity_resolutions_total",
			Help: "Total identity resolutions by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ResolutionDuration tracks how long a resolution held its locks
	ResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "sessiongate_identity_resolution_duration_ms",
			Help:                            "Identity resolution duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"provider"},
	)

	// TokensIssued counts session tokens minted
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_tokens_issued_total",
			Help: "Total session tokens issued by status",
		},
		[]string{"status"},
	)

	// TokenVerifications counts verification results (valid, expired, invalid_signature, malformed)
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_token_verifications_total",
			Help: "Total session token verifications by result",
		},
		[]string{"result"},
	)

	// ProviderExchanges counts authorization code exchanges with the identity provider
	ProviderExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_provider_exchanges_total",
			Help: "Total authorization code exchanges by provider and status",
		},
		[]string{"provider", "status"},
	)
)

// HTTP Handler Metrics
var (
	// HTTPRequests tracks HTTP requests
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessiongate_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPDuration tracks HTTP request duration
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "sessiongate_http_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"method", "path"},
	)

	// HTTPActiveRequests tracks active HTTP requests
	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessiongate_http_active_requests",
			Help: "Number of active HTTP requests",
		},
	)
)
