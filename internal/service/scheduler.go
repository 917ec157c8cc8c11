package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"resale-sync-service/config"
	"resale-sync-service/internal/models"
	"resale-sync-service/internal/util"

	"go.uber.org/zap"
)

// SchedulerStore is the persistence surface the scheduler needs.
type SchedulerStore interface {
	EnsureBudgetWindow(ctx context.Context, provider string, window time.Time, limit int) error
	BudgetUsage(ctx context.Context, window time.Time) ([]models.RateBudget, error)
	DuePendingJobs(ctx context.Context, limit int) ([]models.SyncJob, error)
	MarkJobsProcessing(ctx context.Context, jobIDs []int64) ([]models.SyncJob, error)
	RecordSyncRun(ctx context.Context, run *models.SyncRun) error
}

// BatchRunner runs one provider's admitted jobs. Implemented by Worker.
type BatchRunner interface {
	RunBatch(ctx context.Context, provider string, jobs []models.SyncJob) BatchResult
}

// Scheduler selects pending sync jobs that fit the remaining provider
// budgets and dispatches them. The admission decision is single-threaded
// to keep budget accounting race-free; dispatch fans out per provider,
// since provider budgets are independent.
type Scheduler struct {
	store      SchedulerStore
	runner     BatchRunner
	providers  []config.ProviderConfig
	maxBatch   int
	fetchLimit int
	logger     *zap.Logger
}

// NewScheduler creates a scheduler over the given providers
func NewScheduler(store SchedulerStore, runner BatchRunner, providers []config.ProviderConfig, maxBatch, fetchLimit int) *Scheduler {
	return &Scheduler{
		store:      store,
		runner:     runner,
		providers:  providers,
		maxBatch:   maxBatch,
		fetchLimit: fetchLimit,
		logger:     util.GetLogger(),
	}
}

// Run executes one scheduling pass. A run that admits nothing is a benign
// no-op, not an error; the recorded note distinguishes an empty queue from
// exhausted budgets.
func (s *Scheduler) Run(ctx context.Context) (*models.SyncRun, error) {
	ctx, span := util.StartSpan(ctx, "Scheduler.Run")
	defer span.End()

	started := time.Now().UTC()
	window := budgetWindow(started)

	limits := make(map[string]int, len(s.providers))
	for _, p := range s.providers {
		limits[p.Name] = p.HourlyLimit
		if err := s.store.EnsureBudgetWindow(ctx, p.Name, window, p.HourlyLimit); err != nil {
			return nil, fmt.Errorf("failed to ensure budget window for %s: %w", p.Name, err)
		}
	}

	usage, err := s.store.BudgetUsage(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("failed to read budget usage: %w", err)
	}

	remaining := make(map[string]int, len(limits))
	for name, limit := range limits {
		remaining[name] = limit
	}
	for _, b := range usage {
		if _, known := remaining[b.Provider]; known {
			remaining[b.Provider] = b.CallLimit - b.Used
		}
	}

	pending, err := s.store.DuePendingJobs(ctx, s.fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	admitted := s.admit(pending, remaining)
	if len(admitted) == 0 {
		note := "queue empty"
		if len(pending) > 0 {
			note = "all budgets exhausted"
		}
		run := &models.SyncRun{StartedAt: started, FinishedAt: time.Now().UTC(), Note: note}
		if err := s.store.RecordSyncRun(ctx, run); err != nil {
			s.logger.Error("Failed to record sync run", zap.Error(err))
		}
		util.SchedulerRunsTotal.WithLabelValues("noop").Inc()
		util.SchedulerBatchSize.Observe(0)
		s.logger.Info("Scheduler run was a no-op", zap.String("note", note))
		return run, nil
	}

	ids := make([]int64, len(admitted))
	for i, job := range admitted {
		ids[i] = job.ID
	}

	claimed, err := s.store.MarkJobsProcessing(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to claim admitted jobs: %w", err)
	}

	byProvider := make(map[string][]models.SyncJob)
	for _, job := range claimed {
		byProvider[job.Provider] = append(byProvider[job.Provider], job)
	}

	// Fan out one batch per provider; within a provider the worker runs
	// jobs sequentially.
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total BatchResult
	)
	for providerName, jobs := range byProvider {
		wg.Add(1)
		go func(providerName string, jobs []models.SyncJob) {
			defer wg.Done()
			result := s.runner.RunBatch(ctx, providerName, jobs)
			mu.Lock()
			total.Succeeded += result.Succeeded
			total.Failed += result.Failed
			total.Deferred += result.Deferred
			mu.Unlock()
		}(providerName, jobs)
	}
	wg.Wait()

	run := &models.SyncRun{
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Selected:   len(claimed),
		Succeeded:  total.Succeeded,
		Failed:     total.Failed,
		Deferred:   total.Deferred,
	}
	if err := s.store.RecordSyncRun(ctx, run); err != nil {
		s.logger.Error("Failed to record sync run", zap.Error(err))
	}

	util.SchedulerRunsTotal.WithLabelValues("dispatched").Inc()
	util.SchedulerBatchSize.Observe(float64(len(claimed)))

	s.logger.Info("Scheduler run finished",
		zap.Int("selected", run.Selected),
		zap.Int("succeeded", run.Succeeded),
		zap.Int("failed", run.Failed),
		zap.Int("deferred", run.Deferred))
	return run, nil
}

// admit greedily fills per-provider batches while each provider's
// admitted count stays within its remaining budget and the batch cap.
// Jobs for unknown providers are left in the queue untouched.
func (s *Scheduler) admit(pending []models.SyncJob, remaining map[string]int) []models.SyncJob {
	counts := make(map[string]int)
	var admitted []models.SyncJob

	for _, job := range pending {
		budget, known := remaining[job.Provider]
		if !known {
			continue
		}
		if counts[job.Provider] >= s.maxBatch || counts[job.Provider] >= budget {
			continue
		}
		counts[job.Provider]++
		admitted = append(admitted, job)
	}
	return admitted
}
