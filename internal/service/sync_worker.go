package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/provider"
	"resale-sync-service/internal/sizes"
	"resale-sync-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errBudgetExhausted is a deferral signal, not a failure: the hourly
// budget for the provider has run out mid-batch.
var errBudgetExhausted = errors.New("provider call budget exhausted")

// WorkerStore is the persistence surface the sync worker writes through.
type WorkerStore interface {
	GetStyleByID(ctx context.Context, id int64) (*models.CatalogStyle, error)
	GetMapping(ctx context.Context, styleID int64, provider string) (*models.ProviderMapping, error)
	CreateMapping(ctx context.Context, mapping *models.ProviderMapping) error
	BackfillStyleMetadata(ctx context.Context, styleID int64, brand, name, colorway string) error
	MarkMappingInvalid(ctx context.Context, mappingID int64) error
	PurgeSnapshotsForMapping(ctx context.Context, mappingID int64) (int64, error)
	UpsertVariant(ctx context.Context, variant *models.Variant) error
	InsertSnapshot(ctx context.Context, snap *models.MarketSnapshot) (bool, error)
}

// BudgetReserver reserves provider calls against the hourly budget.
type BudgetReserver interface {
	TryReserveCalls(ctx context.Context, provider string, window time.Time, n int) (bool, error)
}

// CacheInvalidator drops cached market views after fresh data lands.
type CacheInvalidator interface {
	InvalidateStyle(ctx context.Context, styleID int64) error
}

// SyncEventPublisher publishes sync lifecycle events. May be nil.
type SyncEventPublisher interface {
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
	PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error
	PublishMappingInvalidated(ctx context.Context, event *models.MappingInvalidatedEvent) error
}

// BatchResult summarizes one provider batch.
type BatchResult struct {
	Succeeded int
	Failed    int
	Deferred  int
}

// Worker consumes batches of sync jobs for one provider at a time. Jobs
// within a batch run strictly sequentially: provider rate limits are
// per-account, not per-request, so parallelism would violate them.
type Worker struct {
	adapters   map[string]provider.Adapter
	store      WorkerStore
	queue      *Queue
	budgets    BudgetReserver
	cache      CacheInvalidator
	publisher  SyncEventPublisher
	deferDelay time.Duration
	logger     *zap.Logger
}

// NewWorker creates a sync worker. cache and publisher may be nil.
func NewWorker(
	adapters map[string]provider.Adapter,
	store WorkerStore,
	queue *Queue,
	budgets BudgetReserver,
	cache CacheInvalidator,
	publisher SyncEventPublisher,
	deferDelay time.Duration,
) *Worker {
	return &Worker{
		adapters:   adapters,
		store:      store,
		queue:      queue,
		budgets:    budgets,
		cache:      cache,
		publisher:  publisher,
		deferDelay: deferDelay,
		logger:     util.GetLogger(),
	}
}

// jobSummary carries counts for the completion event.
type jobSummary struct {
	variants  int
	snapshots int
}

// RunBatch processes one provider's admitted jobs sequentially. A rate
// limit (from the provider or the hourly budget) defers the current job
// and everything after it back to pending; deferral is never recorded as
// failure.
func (w *Worker) RunBatch(ctx context.Context, providerName string, jobs []models.SyncJob) BatchResult {
	var result BatchResult

	adapter, ok := w.adapters[providerName]
	if !ok {
		for i := range jobs {
			if err := w.queue.FailPermanently(ctx, &jobs[i], fmt.Errorf("no adapter registered for provider %s", providerName)); err != nil {
				w.logger.Error("Failed to fail job", zap.Int64("job_id", jobs[i].ID), zap.Error(err))
			}
			result.Failed++
		}
		return result
	}

	for i := range jobs {
		job := &jobs[i]
		start := time.Now()

		summary, err := w.syncJob(ctx, adapter, job)
		util.SyncJobLatency.WithLabelValues(providerName).Observe(time.Since(start).Seconds())

		switch {
		case err == nil:
			if completeErr := w.queue.Complete(ctx, job); completeErr != nil {
				w.logger.Error("Failed to complete job", zap.Int64("job_id", job.ID), zap.Error(completeErr))
			}
			result.Succeeded++
			w.afterSuccess(ctx, job, summary)

		case errors.Is(err, provider.ErrRateLimited), errors.Is(err, errBudgetExhausted):
			// Defer this job and every remaining job in the batch.
			for j := i; j < len(jobs); j++ {
				if deferErr := w.queue.Defer(ctx, &jobs[j], w.deferDelay); deferErr != nil {
					w.logger.Error("Failed to defer job", zap.Int64("job_id", jobs[j].ID), zap.Error(deferErr))
				}
				result.Deferred++
			}
			w.logger.Info("Provider rate limited, deferring remainder of batch",
				zap.String("provider", providerName),
				zap.Int("deferred", len(jobs)-i))
			return result

		case errors.Is(err, provider.ErrNotFound):
			if failErr := w.queue.FailPermanently(ctx, job, err); failErr != nil {
				w.logger.Error("Failed to fail job", zap.Int64("job_id", job.ID), zap.Error(failErr))
			}
			result.Failed++
			w.publishFailure(ctx, job, err, true)

		default:
			if failErr := w.queue.Fail(ctx, job, err); failErr != nil {
				w.logger.Error("Failed to fail job", zap.Int64("job_id", job.ID), zap.Error(failErr))
			}
			result.Failed++
			w.publishFailure(ctx, job, err, false)
		}
	}

	return result
}

// syncJob refreshes market data for one (style, provider) pair.
func (w *Worker) syncJob(ctx context.Context, adapter provider.Adapter, job *models.SyncJob) (*jobSummary, error) {
	style, err := w.store.GetStyleByID(ctx, job.StyleID)
	if err != nil {
		return nil, err
	}
	if style == nil {
		return nil, fmt.Errorf("style %d does not exist: %w", job.StyleID, provider.ErrNotFound)
	}

	mapping, err := w.resolveMapping(ctx, adapter, job, style)
	if err != nil {
		return nil, err
	}

	if mapping.Status == models.MappingStatusInvalid {
		return nil, fmt.Errorf("mapping for style %d on %s is invalid: %w", job.StyleID, job.Provider, provider.ErrNotFound)
	}

	if err := w.reserveCall(ctx, job.Provider); err != nil {
		return nil, err
	}
	variants, err := adapter.ListVariants(ctx, mapping.ExternalID)
	if err != nil {
		w.countCall(job.Provider, err)
		if errors.Is(err, provider.ErrNotFound) {
			w.invalidateMapping(ctx, mapping)
		}
		return nil, err
	}
	w.countCall(job.Provider, nil)

	summary := &jobSummary{}
	for _, v := range variants {
		variant := &models.Variant{
			MappingID:    mapping.ID,
			ExternalID:   v.ExternalID,
			VariantValue: sizes.VariantValue(v.SizeToken, v.DisplaySize),
			DisplaySize:  v.DisplaySize,
		}
		if canonical, ok := sizes.NormalizeDisplay(v.DisplaySize, style.Brand); ok {
			variant.CanonicalSize = &canonical
		}

		// A write failure here must surface; a swallowed failure looks
		// like a successful "0 results" sync downstream.
		if err := w.store.UpsertVariant(ctx, variant); err != nil {
			return nil, err
		}
		summary.variants++

		if err := w.reserveCall(ctx, job.Provider); err != nil {
			return nil, err
		}
		market, err := adapter.FetchMarketData(ctx, mapping.ExternalID, v.ExternalID, adapter.Currency())
		if err != nil {
			w.countCall(job.Provider, err)
			if errors.Is(err, provider.ErrNotFound) {
				w.invalidateMapping(ctx, mapping)
			}
			return nil, err
		}
		w.countCall(job.Provider, nil)

		snap := &models.MarketSnapshot{
			Provider:   job.Provider,
			StyleID:    style.ID,
			MappingID:  mapping.ID,
			VariantID:  variant.ID,
			Currency:   market.Currency,
			Region:     market.Region,
			Flexible:   market.Flexible,
			Consigned:  market.Consigned,
			LowestAsk:  market.LowestAsk,
			HighestBid: market.HighestBid,
			LastSale:   market.LastSale,
			SaleCount:  market.SaleCount,
			ObservedAt: market.ObservedAt,
		}

		written, err := w.store.InsertSnapshot(ctx, snap)
		if err != nil {
			return nil, err
		}
		if written {
			summary.snapshots++
			util.SnapshotsWrittenTotal.WithLabelValues(job.Provider).Inc()
		} else {
			util.SnapshotsSkippedTotal.WithLabelValues(job.Provider).Inc()
		}
	}

	return summary, nil
}

// resolveMapping finds or lazily creates the provider mapping for a style.
func (w *Worker) resolveMapping(ctx context.Context, adapter provider.Adapter, job *models.SyncJob, style *models.CatalogStyle) (*models.ProviderMapping, error) {
	mapping, err := w.store.GetMapping(ctx, job.StyleID, job.Provider)
	if err != nil {
		return nil, err
	}
	if mapping != nil {
		return mapping, nil
	}

	if err := w.reserveCall(ctx, job.Provider); err != nil {
		return nil, err
	}
	candidates, err := adapter.SearchCatalog(ctx, style.StyleCode)
	if err != nil {
		w.countCall(job.Provider, err)
		return nil, err
	}
	w.countCall(job.Provider, nil)

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no catalog match for style %s on %s", style.StyleCode, job.Provider)
	}

	best := candidates[0]
	mapping = &models.ProviderMapping{
		StyleID:    job.StyleID,
		Provider:   job.Provider,
		ExternalID: best.ExternalID,
		Status:     models.MappingStatusActive,
	}
	if err := w.store.CreateMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("failed to create mapping: %w", err)
	}

	// Metadata backfill: whichever provider answers first fills the blanks.
	if err := w.store.BackfillStyleMetadata(ctx, style.ID, best.Brand, best.Name, best.Colorway); err != nil {
		w.logger.Warn("Failed to backfill style metadata", zap.Int64("style_id", style.ID), zap.Error(err))
	}

	return mapping, nil
}

// invalidateMapping flags the mapping, purges its price history so stale
// numbers never display, and alerts the operator channel for remap.
func (w *Worker) invalidateMapping(ctx context.Context, mapping *models.ProviderMapping) {
	if err := w.store.MarkMappingInvalid(ctx, mapping.ID); err != nil {
		w.logger.Error("Failed to invalidate mapping", zap.Int64("mapping_id", mapping.ID), zap.Error(err))
		return
	}

	purged, err := w.store.PurgeSnapshotsForMapping(ctx, mapping.ID)
	if err != nil {
		w.logger.Error("Failed to purge snapshots for invalid mapping",
			zap.Int64("mapping_id", mapping.ID), zap.Error(err))
	}

	w.logger.Warn("Provider mapping invalidated",
		zap.Int64("mapping_id", mapping.ID),
		zap.String("provider", mapping.Provider),
		zap.Int64("purged_snapshots", purged))

	if w.publisher != nil {
		event := &models.MappingInvalidatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeMappingInvalidated,
				Timestamp: time.Now(),
			},
			StyleID:    mapping.StyleID,
			Provider:   mapping.Provider,
			ExternalID: mapping.ExternalID,
		}
		if err := w.publisher.PublishMappingInvalidated(ctx, event); err != nil {
			w.logger.Error("Failed to publish MappingInvalidated event", zap.Error(err))
		}
	}
}

// reserveCall charges one call to the provider's hourly budget.
func (w *Worker) reserveCall(ctx context.Context, providerName string) error {
	window := budgetWindow(time.Now())
	ok, err := w.budgets.TryReserveCalls(ctx, providerName, window, 1)
	if err != nil {
		return fmt.Errorf("failed to reserve call budget: %w", err)
	}
	if !ok {
		util.BudgetDeniedTotal.WithLabelValues(providerName).Inc()
		return errBudgetExhausted
	}
	return nil
}

func (w *Worker) countCall(providerName string, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, provider.ErrRateLimited):
		outcome = "rate_limited"
	case errors.Is(err, provider.ErrNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	util.ProviderCallsTotal.WithLabelValues(providerName, outcome).Inc()
}

func (w *Worker) afterSuccess(ctx context.Context, job *models.SyncJob, summary *jobSummary) {
	if w.cache != nil {
		if err := w.cache.InvalidateStyle(ctx, job.StyleID); err != nil {
			w.logger.Warn("Failed to invalidate market cache", zap.Int64("style_id", job.StyleID), zap.Error(err))
		}
	}

	if w.publisher != nil {
		event := &models.SyncCompletedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeSyncCompleted,
				Timestamp: time.Now(),
			},
			JobID:     job.ID,
			StyleID:   job.StyleID,
			Provider:  job.Provider,
			Variants:  summary.variants,
			Snapshots: summary.snapshots,
		}
		if err := w.publisher.PublishSyncCompleted(ctx, event); err != nil {
			w.logger.Error("Failed to publish SyncCompleted event", zap.Error(err))
		}
	}
}

func (w *Worker) publishFailure(ctx context.Context, job *models.SyncJob, cause error, terminal bool) {
	if w.publisher == nil {
		return
	}
	event := &models.SyncFailedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncFailed,
			Timestamp: time.Now(),
		},
		JobID:    job.ID,
		StyleID:  job.StyleID,
		Provider: job.Provider,
		Reason:   cause.Error(),
		Terminal: terminal,
	}
	if err := w.publisher.PublishSyncFailed(ctx, event); err != nil {
		w.logger.Error("Failed to publish SyncFailed event", zap.Error(err))
	}
}

// budgetWindow aligns a timestamp to its hourly accounting window.
func budgetWindow(t time.Time) time.Time {
	return t.UTC().Truncate(time.Hour)
}
