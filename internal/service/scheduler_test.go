package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"resale-sync-service/config"
	"resale-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSchedStore serves scripted pending jobs and budget usage.
type fakeSchedStore struct {
	pending []models.SyncJob
	usage   []models.RateBudget

	ensured  map[string]int
	marked   []int64
	runs     []*models.SyncRun
	markedMu sync.Mutex
}

func newFakeSchedStore() *fakeSchedStore {
	return &fakeSchedStore{ensured: make(map[string]int)}
}

func (f *fakeSchedStore) EnsureBudgetWindow(ctx context.Context, provider string, window time.Time, limit int) error {
	f.ensured[provider] = limit
	return nil
}

func (f *fakeSchedStore) BudgetUsage(ctx context.Context, window time.Time) ([]models.RateBudget, error) {
	return f.usage, nil
}

func (f *fakeSchedStore) DuePendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error) {
	return f.pending, nil
}

func (f *fakeSchedStore) MarkJobsProcessing(ctx context.Context, jobIDs []int64) ([]models.SyncJob, error) {
	f.markedMu.Lock()
	defer f.markedMu.Unlock()
	f.marked = append(f.marked, jobIDs...)

	byID := make(map[int64]models.SyncJob, len(f.pending))
	for _, job := range f.pending {
		byID[job.ID] = job
	}

	claimed := make([]models.SyncJob, 0, len(jobIDs))
	for _, id := range jobIDs {
		job := byID[id]
		job.Status = models.JobStatusProcessing
		claimed = append(claimed, job)
	}
	return claimed, nil
}

func (f *fakeSchedStore) RecordSyncRun(ctx context.Context, run *models.SyncRun) error {
	f.runs = append(f.runs, run)
	return nil
}

// fakeRunner records which jobs were dispatched per provider.
type fakeRunner struct {
	mu      sync.Mutex
	batches map[string][]models.SyncJob
	result  func(provider string, jobs []models.SyncJob) BatchResult
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		batches: make(map[string][]models.SyncJob),
		result: func(provider string, jobs []models.SyncJob) BatchResult {
			return BatchResult{Succeeded: len(jobs)}
		},
	}
}

func (f *fakeRunner) RunBatch(ctx context.Context, provider string, jobs []models.SyncJob) BatchResult {
	f.mu.Lock()
	f.batches[provider] = append(f.batches[provider], jobs...)
	f.mu.Unlock()
	return f.result(provider, jobs)
}

func testProviders() []config.ProviderConfig {
	return []config.ProviderConfig{
		{Name: "exchange", HourlyLimit: 300},
		{Name: "peer", HourlyLimit: 120},
	}
}

func TestSchedulerDispatchesWithinBudgets(t *testing.T) {
	store := newFakeSchedStore()
	store.pending = []models.SyncJob{
		{ID: 1, StyleID: 1, Provider: "exchange"},
		{ID: 2, StyleID: 2, Provider: "exchange"},
		{ID: 3, StyleID: 3, Provider: "peer"},
	}

	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, run.Selected)
	assert.Equal(t, 3, run.Succeeded)
	assert.Len(t, runner.batches["exchange"], 2)
	assert.Len(t, runner.batches["peer"], 1)
	assert.Equal(t, 300, store.ensured["exchange"])
	require.Len(t, store.runs, 1)
}

func TestSchedulerRespectsRemainingBudget(t *testing.T) {
	store := newFakeSchedStore()
	store.pending = []models.SyncJob{
		{ID: 1, Provider: "exchange"},
		{ID: 2, Provider: "exchange"},
		{ID: 3, Provider: "exchange"},
	}
	// 298 of 300 calls already spent this window.
	store.usage = []models.RateBudget{
		{Provider: "exchange", Used: 298, CallLimit: 300},
	}

	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, run.Selected)
	assert.Len(t, runner.batches["exchange"], 2)
}

func TestSchedulerCapsBatchSize(t *testing.T) {
	store := newFakeSchedStore()
	for i := int64(1); i <= 10; i++ {
		store.pending = append(store.pending, models.SyncJob{ID: i, Provider: "exchange"})
	}

	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 4, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, run.Selected)
	assert.Len(t, runner.batches["exchange"], 4)
}

func TestSchedulerEmptyQueueIsNoop(t *testing.T) {
	store := newFakeSchedStore()
	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, run.Selected)
	assert.Equal(t, "queue empty", run.Note)
	assert.Empty(t, runner.batches)
	require.Len(t, store.runs, 1)
}

func TestSchedulerExhaustedBudgetsIsNoop(t *testing.T) {
	store := newFakeSchedStore()
	store.pending = []models.SyncJob{{ID: 1, Provider: "exchange"}}
	store.usage = []models.RateBudget{
		{Provider: "exchange", Used: 300, CallLimit: 300},
	}

	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, run.Selected)
	assert.Equal(t, "all budgets exhausted", run.Note)
	assert.Empty(t, runner.batches)
}

func TestSchedulerSkipsUnknownProviders(t *testing.T) {
	store := newFakeSchedStore()
	store.pending = []models.SyncJob{
		{ID: 1, Provider: "exchange"},
		{ID: 2, Provider: "decommissioned"},
	}

	runner := newFakeRunner()
	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Selected)
	assert.NotContains(t, runner.batches, "decommissioned")
}

func TestSchedulerAggregatesResultsAcrossProviders(t *testing.T) {
	store := newFakeSchedStore()
	store.pending = []models.SyncJob{
		{ID: 1, Provider: "exchange"},
		{ID: 2, Provider: "peer"},
		{ID: 3, Provider: "peer"},
	}

	runner := newFakeRunner()
	runner.result = func(provider string, jobs []models.SyncJob) BatchResult {
		if provider == "peer" {
			return BatchResult{Succeeded: 1, Deferred: 1}
		}
		return BatchResult{Failed: 1}
	}

	s := NewScheduler(store, runner, testProviders(), 20, 200)

	run, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, run.Selected)
	assert.Equal(t, 1, run.Succeeded)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 1, run.Deferred)
}
