package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncBatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_batches_total",
		Help: "Total number of batch steps executed",
	})

	SyncRunsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_runs_completed_total",
		Help: "Total number of full reconciliation cycles completed",
	})

	SyncProductsUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_products_updated_total",
		Help: "Total number of products updated by the sync engine",
	})

	SyncProductsDeactivatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_products_deactivated_total",
		Help: "Total number of products deactivated because their SKU vanished",
	})

	SyncErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_errors_total",
		Help: "Total number of per-record sync errors",
	}, []string{"stage"})

	SyncBatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_batch_latency_seconds",
		Help:    "Latency of one batch step",
		Buckets: prometheus.DefBuckets,
	})

	SupplierRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplier_requests_total",
		Help: "Total number of supplier API requests",
	}, []string{"path", "status"})

	SupplierRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "supplier_retries_total",
		Help: "Total number of supplier API retries",
	}, []string{"reason"})

	RateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_waits_total",
		Help: "Total number of waits inserted before supplier requests",
	})

	RateLimitWaitSeconds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rate_limit_wait_seconds_total",
		Help: "Cumulative seconds spent waiting on the rate limiter",
	})

	ProductsImportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_imported_total",
		Help: "Total number of products imported from the supplier",
	})

	ImportsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imports_skipped_total",
		Help: "Total number of import candidates skipped",
	}, []string{"reason"})

	OrdersSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Total number of orders submitted to the supplier",
	})

	OrderSubmissionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_submissions_failed_total",
		Help: "Total number of failed supplier order submissions",
	}, []string{"reason"})

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
