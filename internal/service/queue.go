package service

import (
	"context"
	"fmt"
	"time"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/util"

	"go.uber.org/zap"
)

// maxStoredErrorLen bounds the error text persisted on a job.
const maxStoredErrorLen = 500

// QueueStore is the persistence surface the sync queue needs.
type QueueStore interface {
	EnqueueJob(ctx context.Context, styleID int64, provider string, priority, maxAttempts int) (bool, error)
	ClaimJobs(ctx context.Context, provider string, limit int) ([]models.SyncJob, error)
	CompleteJob(ctx context.Context, jobID int64) error
	UpdateJobFailure(ctx context.Context, jobID int64, status, lastError string, attempts int, nextRetryAt *time.Time) error
	DeferJob(ctx context.Context, jobID int64, nextRetryAt time.Time) error
	RecoverStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Queue is the durable, deduplicated backlog of (style, provider) sync
// requests. All state transitions for jobs flow through here.
type Queue struct {
	store        QueueStore
	maxAttempts  int
	backoffBase  time.Duration
	staleTimeout time.Duration
	logger       *zap.Logger
}

// NewQueue creates a sync queue facade over the store
func NewQueue(store QueueStore, maxAttempts int, backoffBase, staleTimeout time.Duration) *Queue {
	return &Queue{
		store:        store,
		maxAttempts:  maxAttempts,
		backoffBase:  backoffBase,
		staleTimeout: staleTimeout,
		logger:       util.GetLogger(),
	}
}

// Enqueue requests a refresh for a (style, provider) pair. Requests for a
// pair with an active job collapse into that job; dedupe is reported, not
// an error.
func (q *Queue) Enqueue(ctx context.Context, styleID int64, provider string, priority int) (bool, error) {
	created, err := q.store.EnqueueJob(ctx, styleID, provider, priority, q.maxAttempts)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	if created {
		util.SyncJobsEnqueuedTotal.Inc()
		q.logger.Info("Sync job enqueued",
			zap.Int64("style_id", styleID),
			zap.String("provider", provider))
	} else {
		util.SyncJobsDedupedTotal.Inc()
	}
	return created, nil
}

// Claim atomically claims up to limit due jobs for one provider
func (q *Queue) Claim(ctx context.Context, provider string, limit int) ([]models.SyncJob, error) {
	return q.store.ClaimJobs(ctx, provider, limit)
}

// Complete marks a job terminally successful
func (q *Queue) Complete(ctx context.Context, job *models.SyncJob) error {
	if err := q.store.CompleteJob(ctx, job.ID); err != nil {
		return err
	}
	util.SyncJobsCompletedTotal.WithLabelValues(job.Provider, "success").Inc()
	return nil
}

// Fail records one failed attempt. The job is requeued with exponential
// backoff until attempts reach the cap, then marked terminally failed.
func (q *Queue) Fail(ctx context.Context, job *models.SyncJob, cause error) error {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	attempts := job.Attempts + 1
	status, nextRetryAt := failureTransition(attempts, maxAttempts, q.backoffBase, time.Now().UTC())

	if err := q.store.UpdateJobFailure(ctx, job.ID, status, truncateError(cause), attempts, nextRetryAt); err != nil {
		return fmt.Errorf("failed to record job failure: %w", err)
	}

	outcome := "requeued"
	if status == models.JobStatusFailed {
		outcome = "failed"
	}
	util.SyncJobsCompletedTotal.WithLabelValues(job.Provider, outcome).Inc()

	q.logger.Warn("Sync job failed",
		zap.Int64("job_id", job.ID),
		zap.String("provider", job.Provider),
		zap.Int("attempts", attempts),
		zap.String("status", status),
		zap.Error(cause))
	return nil
}

// FailPermanently marks a job terminally failed regardless of remaining
// attempts. Used for upstream 404s, which never heal by retrying.
func (q *Queue) FailPermanently(ctx context.Context, job *models.SyncJob, cause error) error {
	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.maxAttempts
	}

	if err := q.store.UpdateJobFailure(ctx, job.ID, models.JobStatusFailed, truncateError(cause), maxAttempts, nil); err != nil {
		return fmt.Errorf("failed to record permanent job failure: %w", err)
	}
	util.SyncJobsCompletedTotal.WithLabelValues(job.Provider, "failed").Inc()

	q.logger.Warn("Sync job permanently failed",
		zap.Int64("job_id", job.ID),
		zap.String("provider", job.Provider),
		zap.Error(cause))
	return nil
}

// Defer returns a job to pending without counting an attempt. Rate-limit
// deferral is not a failure and must not eat into the retry budget.
func (q *Queue) Defer(ctx context.Context, job *models.SyncJob, delay time.Duration) error {
	if err := q.store.DeferJob(ctx, job.ID, time.Now().UTC().Add(delay)); err != nil {
		return fmt.Errorf("failed to defer job: %w", err)
	}
	util.SyncJobsDeferredTotal.WithLabelValues(job.Provider).Inc()
	return nil
}

// RecoverStale sweeps jobs abandoned by crashed workers back to pending
func (q *Queue) RecoverStale(ctx context.Context) (int64, error) {
	recovered, err := q.store.RecoverStaleJobs(ctx, q.staleTimeout)
	if err != nil {
		return 0, err
	}
	if recovered > 0 {
		q.logger.Warn("Recovered stale sync jobs", zap.Int64("count", recovered))
	}
	return recovered, nil
}

// failureTransition decides where a job goes after its attempts-th
// failure: terminal FAILED at the cap, otherwise PENDING with a
// base*2^attempts backoff.
func failureTransition(attempts, maxAttempts int, base time.Duration, now time.Time) (string, *time.Time) {
	if attempts >= maxAttempts {
		return models.JobStatusFailed, nil
	}

	delay := base
	for i := 0; i < attempts; i++ {
		delay *= 2
	}
	next := now.Add(delay)
	return models.JobStatusPending, &next
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return msg
}
