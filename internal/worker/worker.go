package worker

import (
	"context"
	"log"
	"time"

	"resale-sync-service/internal/broker"
	"resale-sync-service/internal/models"
	"resale-sync-service/internal/service"
)

// EventStore tracks consumed event ids for exactly-once handling.
type EventStore interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// SyncRequestWorker consumes SyncRequested events and enqueues sync jobs.
// Duplicate deliveries are dropped twice over: once by the processed-event
// ledger, once by queue dedupe.
type SyncRequestWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	queue        *service.Queue
	events       EventStore
}

// NewSyncRequestWorker creates a sync request worker
func NewSyncRequestWorker(consumer *broker.Consumer, queue *service.Queue, events EventStore) *SyncRequestWorker {
	w := &SyncRequestWorker{
		consumer: consumer,
		queue:    queue,
		events:   events,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSyncRequested(w.handleSyncRequested)
	w.eventHandler = eventHandler
	return w
}

// Start starts the worker
func (w *SyncRequestWorker) Start(ctx context.Context) error {
	log.Println("Starting sync request worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SyncRequestWorker) Stop() error {
	log.Println("Stopping sync request worker...")
	return w.consumer.Close()
}

func (w *SyncRequestWorker) handleSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	processed, err := w.events.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		log.Printf("Skipping already processed event: %s", event.EventID)
		return nil
	}

	if _, err := w.queue.Enqueue(ctx, event.StyleID, event.Provider, event.Priority); err != nil {
		return err
	}

	return w.events.MarkEventProcessed(ctx, event.EventID, event.EventType)
}

// SchedulerWorker drives scheduling passes on a fixed interval and sweeps
// stale jobs left behind by crashed workers before each pass.
type SchedulerWorker struct {
	scheduler *service.Scheduler
	queue     *service.Queue
	interval  time.Duration
	stop      chan struct{}
	done      chan struct{}
}

// NewSchedulerWorker creates a scheduler worker
func NewSchedulerWorker(scheduler *service.Scheduler, queue *service.Queue, interval time.Duration) *SchedulerWorker {
	return &SchedulerWorker{
		scheduler: scheduler,
		queue:     queue,
		interval:  interval,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs scheduling passes until the context ends or Stop is called
func (sw *SchedulerWorker) Start(ctx context.Context) error {
	log.Println("Starting scheduler worker...")
	defer close(sw.done)

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sw.stop:
			return nil
		case <-ticker.C:
			sw.runOnce(ctx)
		}
	}
}

// Stop stops the worker and waits for the in-flight pass to finish
func (sw *SchedulerWorker) Stop() error {
	log.Println("Stopping scheduler worker...")
	close(sw.stop)
	<-sw.done
	return nil
}

func (sw *SchedulerWorker) runOnce(ctx context.Context) {
	if _, err := sw.queue.RecoverStale(ctx); err != nil {
		log.Printf("Failed to recover stale jobs: %v", err)
	}
	if _, err := sw.scheduler.Run(ctx); err != nil {
		log.Printf("Scheduler pass failed: %v", err)
	}
}
