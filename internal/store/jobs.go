package store

import (
	"context"
	"database/sql"
	"time"

	"resale-sync-service/internal/models"

	"github.com/lib/pq"
)

// EnqueueJob inserts a pending sync job for a (style, provider) pair.
// When an active (pending/processing) job for the pair already exists the
// insert is a no-op: the partial unique index absorbs the conflict and
// bursts of triggers collapse into one job. Returns whether a new job was
// created.
func (s *Store) EnqueueJob(ctx context.Context, styleID int64, providerName string, priority, maxAttempts int) (bool, error) {
	var id int64
	err := s.db.GetContext(ctx, &id, `
		INSERT INTO sync_jobs (style_id, provider, status, priority, max_attempts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (style_id, provider) WHERE status IN ('PENDING', 'PROCESSING') DO NOTHING
		RETURNING id`,
		styleID, providerName, models.JobStatusPending, priority, maxAttempts)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DuePendingJobs pulls a superset of dispatchable jobs ordered by priority
// descending then creation time ascending, skipping jobs still in backoff.
func (s *Store) DuePendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	var jobs []models.SyncJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT * FROM sync_jobs
		WHERE status = $1 AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY priority DESC, created_at ASC
		LIMIT $2`,
		models.JobStatusPending, limit)
	return jobs, err
}

// MarkJobsProcessing atomically flips the given jobs from pending to
// processing and returns the ones actually claimed. Rows grabbed by a
// concurrent scheduler drop out of the result, so two schedulers can never
// hold the same job.
func (s *Store) MarkJobsProcessing(ctx context.Context, jobIDs []int64) ([]models.SyncJob, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}

	var claimed []models.SyncJob
	err := s.db.SelectContext(ctx, &claimed, `
		UPDATE sync_jobs
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id = ANY($2) AND status = $3
		RETURNING *`,
		models.JobStatusProcessing, pq.Array(jobIDs), models.JobStatusPending)
	return claimed, err
}

// ClaimJobs atomically claims up to limit due pending jobs for one
// provider. FOR UPDATE SKIP LOCKED keeps concurrent claimers disjoint.
func (s *Store) ClaimJobs(ctx context.Context, providerName string, limit int) ([]models.SyncJob, error) {
	var claimed []models.SyncJob
	err := s.db.SelectContext(ctx, &claimed, `
		UPDATE sync_jobs
		SET status = $1, started_at = NOW(), updated_at = NOW()
		WHERE id IN (
			SELECT id FROM sync_jobs
			WHERE provider = $2 AND status = $3
			  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
			ORDER BY priority DESC, created_at ASC
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *`,
		models.JobStatusProcessing, providerName, models.JobStatusPending, limit)
	return claimed, err
}

// CompleteJob sets terminal success with a completion timestamp
func (s *Store) CompleteJob(ctx context.Context, jobID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, completed_at = NOW(), updated_at = NOW(), last_error = ''
		WHERE id = $2`,
		models.JobStatusSuccess, jobID)
	return err
}

// UpdateJobFailure records one failure: bumps attempts, stores the
// truncated error, and either requeues with a retry time or marks the job
// terminally failed.
func (s *Store) UpdateJobFailure(ctx context.Context, jobID int64, status, lastError string, attempts int, nextRetryAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, last_error = $2, attempts = $3, next_retry_at = $4,
		    completed_at = CASE WHEN $1 = 'FAILED' THEN NOW() ELSE NULL END,
		    updated_at = NOW()
		WHERE id = $5`,
		status, lastError, attempts, nextRetryAt, jobID)
	return err
}

// DeferJob returns a processing job to pending without counting an
// attempt. Used when the provider rate-limits mid-batch: deferral is not a
// failure.
func (s *Store) DeferJob(ctx context.Context, jobID int64, nextRetryAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, next_retry_at = $2, started_at = NULL, updated_at = NOW()
		WHERE id = $3`,
		models.JobStatusPending, nextRetryAt, jobID)
	return err
}

// RecoverStaleJobs sweeps jobs stuck in processing past the timeout
// (crashed worker) back to pending. Returns how many were recovered.
func (s *Store) RecoverStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs
		SET status = $1, started_at = NULL, updated_at = NOW()
		WHERE status = $2 AND started_at < NOW() - ($3 * interval '1 second')`,
		models.JobStatusPending, models.JobStatusProcessing, int64(olderThan.Seconds()))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// RecordSyncRun persists a scheduler run summary
func (s *Store) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (started_at, finished_at, selected, succeeded, failed, deferred, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	return s.db.GetContext(ctx, &run.ID, query,
		run.StartedAt, run.FinishedAt, run.Selected, run.Succeeded, run.Failed, run.Deferred, run.Note)
}
