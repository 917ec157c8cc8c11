package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"resale-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordQueueStore records the last transition the queue asked for.
type recordQueueStore struct {
	enqueueCreated bool
	enqueueErr     error

	lastStatus      string
	lastError       string
	lastAttempts    int
	lastNextRetryAt *time.Time
	deferredUntil   *time.Time
}

func (r *recordQueueStore) EnqueueJob(ctx context.Context, styleID int64, provider string, priority, maxAttempts int) (bool, error) {
	return r.enqueueCreated, r.enqueueErr
}

func (r *recordQueueStore) ClaimJobs(ctx context.Context, provider string, limit int) ([]models.SyncJob, error) {
	return nil, nil
}

func (r *recordQueueStore) CompleteJob(ctx context.Context, jobID int64) error { return nil }

func (r *recordQueueStore) UpdateJobFailure(ctx context.Context, jobID int64, status, lastError string, attempts int, nextRetryAt *time.Time) error {
	r.lastStatus = status
	r.lastError = lastError
	r.lastAttempts = attempts
	r.lastNextRetryAt = nextRetryAt
	return nil
}

func (r *recordQueueStore) DeferJob(ctx context.Context, jobID int64, nextRetryAt time.Time) error {
	r.deferredUntil = &nextRetryAt
	return nil
}

func (r *recordQueueStore) RecoverStaleJobs(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}

func TestFailureTransition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := time.Minute

	tests := []struct {
		name       string
		attempts   int
		wantStatus string
		wantDelay  time.Duration
	}{
		{"first failure requeues with doubled base", 1, models.JobStatusPending, 2 * time.Minute},
		{"second failure quadruples", 2, models.JobStatusPending, 4 * time.Minute},
		{"fourth failure still pending", 4, models.JobStatusPending, 16 * time.Minute},
		{"fifth failure is terminal", 5, models.JobStatusFailed, 0},
		{"beyond the cap stays terminal", 7, models.JobStatusFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, nextRetryAt := failureTransition(tt.attempts, 5, base, now)
			assert.Equal(t, tt.wantStatus, status)

			if tt.wantStatus == models.JobStatusFailed {
				assert.Nil(t, nextRetryAt)
			} else {
				require.NotNil(t, nextRetryAt)
				assert.Equal(t, now.Add(tt.wantDelay), *nextRetryAt)
			}
		})
	}
}

func TestQueueFailRequeuesUntilCap(t *testing.T) {
	store := &recordQueueStore{}
	q := NewQueue(store, 5, time.Minute, 30*time.Minute)

	job := &models.SyncJob{ID: 1, Provider: "exchange", Attempts: 0, MaxAttempts: 5}
	err := q.Fail(context.Background(), job, errors.New("boom"))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusPending, store.lastStatus)
	assert.Equal(t, 1, store.lastAttempts)
	require.NotNil(t, store.lastNextRetryAt)
	assert.True(t, store.lastNextRetryAt.After(time.Now()))

	job.Attempts = 4
	err = q.Fail(context.Background(), job, errors.New("boom again"))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, store.lastStatus)
	assert.Equal(t, 5, store.lastAttempts)
	assert.Nil(t, store.lastNextRetryAt)
}

func TestQueueDeferDoesNotCountAnAttempt(t *testing.T) {
	store := &recordQueueStore{}
	q := NewQueue(store, 5, time.Minute, 30*time.Minute)

	job := &models.SyncJob{ID: 2, Provider: "peer", Attempts: 3}
	err := q.Defer(context.Background(), job, 10*time.Minute)
	require.NoError(t, err)

	require.NotNil(t, store.deferredUntil)
	assert.True(t, store.deferredUntil.After(time.Now().Add(9*time.Minute)))
	// Deferral goes through DeferJob, never UpdateJobFailure.
	assert.Zero(t, store.lastAttempts)
	assert.Empty(t, store.lastStatus)
}

func TestQueueFailPermanentlyIgnoresRemainingAttempts(t *testing.T) {
	store := &recordQueueStore{}
	q := NewQueue(store, 5, time.Minute, 30*time.Minute)

	job := &models.SyncJob{ID: 3, Provider: "auction", Attempts: 0, MaxAttempts: 5}
	err := q.FailPermanently(context.Background(), job, errors.New("gone upstream"))
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusFailed, store.lastStatus)
	assert.Nil(t, store.lastNextRetryAt)
}

func TestQueueFailTruncatesLongErrors(t *testing.T) {
	store := &recordQueueStore{}
	q := NewQueue(store, 5, time.Minute, 30*time.Minute)

	job := &models.SyncJob{ID: 4, Provider: "exchange", MaxAttempts: 5}
	err := q.Fail(context.Background(), job, errors.New(strings.Repeat("x", 2000)))
	require.NoError(t, err)

	assert.Len(t, store.lastError, maxStoredErrorLen)
}

func TestQueueEnqueueReportsDedupe(t *testing.T) {
	store := &recordQueueStore{enqueueCreated: false}
	q := NewQueue(store, 5, time.Minute, 30*time.Minute)

	created, err := q.Enqueue(context.Background(), 10, "exchange", 1)
	require.NoError(t, err)
	assert.False(t, created)

	store.enqueueCreated = true
	created, err = q.Enqueue(context.Background(), 10, "exchange", 1)
	require.NoError(t, err)
	assert.True(t, created)
}
