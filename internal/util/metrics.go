package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncJobsEnqueuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_jobs_enqueued_total",
		Help: "Total number of sync jobs enqueued",
	})

	SyncJobsDedupedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sync_jobs_deduped_total",
		Help: "Total number of enqueue requests collapsed into an existing active job",
	})

	SyncJobsCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_completed_total",
		Help: "Total number of sync jobs reaching a terminal or requeued state",
	}, []string{"provider", "outcome"})

	SyncJobsDeferredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_jobs_deferred_total",
		Help: "Total number of sync jobs deferred due to provider rate limiting",
	}, []string{"provider"})

	ProviderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_calls_total",
		Help: "Total number of provider API calls",
	}, []string{"provider", "outcome"})

	BudgetDeniedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rate_budget_denied_total",
		Help: "Total number of call reservations denied by the hourly budget",
	}, []string{"provider"})

	SnapshotsWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_snapshots_written_total",
		Help: "Total number of market snapshots inserted",
	}, []string{"provider"})

	SnapshotsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "market_snapshots_skipped_total",
		Help: "Total number of snapshot inserts skipped because a newer observation exists",
	}, []string{"provider"})

	SchedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total",
		Help: "Total number of scheduler runs",
	}, []string{"outcome"})

	SchedulerBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scheduler_batch_size",
		Help:    "Number of jobs admitted per scheduler run",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	SyncJobLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_job_latency_seconds",
		Help:    "Latency of processing one sync job",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	ItemsSoldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_items_sold_total",
		Help: "Total number of inventory items marked sold",
	})

	SalesUndoneTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sales_undone_total",
		Help: "Total number of sales undone back into inventory",
	})

	ReconciliationAlertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_reconciliation_alerts_total",
		Help: "Total number of partial inventory moves escalated for manual reconciliation",
	})

	UnifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "market_unify_latency_seconds",
		Help:    "Latency of building a unified market view",
		Buckets: prometheus.DefBuckets,
	})

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
