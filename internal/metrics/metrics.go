// Package metrics provides Prometheus metrics for the credential service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "keyguard"

var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks the number of in-flight HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)

	// RateLimitRejections counts requests rejected by each rate-limit tier.
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
		[]string{"tier"}, // "general", "api" or "strict"
	)

	// CredentialOperations counts credential lifecycle operations by outcome.
	CredentialOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_operations_total",
			Help:      "Total number of credential lifecycle operations",
		},
		[]string{"operation", "outcome"},
	)

	// EncryptionOperations counts encryption operations.
	EncryptionOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "encryption_operations_total",
			Help:      "Total number of encryption/decryption operations",
		},
		[]string{"operation"}, // "encrypt", "decrypt" or "decrypt_failed"
	)

	// ProviderRequests counts outbound provider calls.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of requests made to the completion provider",
		},
		[]string{"kind", "outcome"},
	)

	// SecurityAnomalies counts anomaly signals raised by the monitor.
	SecurityAnomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_anomalies_total",
			Help:      "Total number of security anomalies detected",
		},
		[]string{"action"},
	)

	// CredentialsTotal tracks the total number of stored credentials.
	CredentialsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "credentials_total",
			Help:      "Total number of credentials stored",
		},
	)
)
