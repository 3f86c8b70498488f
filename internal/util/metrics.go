package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	}, []string{"mode"})

	OrdersDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_duplicate_total",
		Help: "Total number of creation requests answered by idempotent replay",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrderCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_create_latency_seconds",
		Help:    "Latency of the order creation pipeline",
		Buckets: prometheus.DefBuckets,
	})

	IdempotencyConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_conflicts_total",
		Help: "Total number of reservations rejected because the key is in flight",
	})

	IdempotencySweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "idempotency_swept_total",
		Help: "Total number of abandoned idempotency records marked failed",
	})

	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of committed status transitions",
	}, []string{"mode", "to"})

	TransitionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_rejected_total",
		Help: "Total number of rejected status transitions",
	}, []string{"reason"})

	SideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "side_effect_failures_total",
		Help: "Total number of failed best-effort post-commit effects",
	}, []string{"effect"})

	CacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total number of cache hits",
	}, []string{"tier"})

	CacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total number of reads that missed both cache tiers",
	})

	RealtimeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_connections",
		Help: "Number of open realtime connections",
	})

	RealtimeDeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_deliveries_total",
		Help: "Total number of events written to realtime connections",
	})

	RealtimeSendFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "realtime_send_failures_total",
		Help: "Total number of swallowed realtime send failures",
	})

	RelayPublishFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_publish_failures_total",
		Help: "Total number of events that could not be forwarded to other instances",
	})

	PaymentAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_attempts_total",
		Help: "Total number of payment gateway calls",
	})

	PaymentResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_results_total",
		Help: "Total number of reconciled payment results",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
