package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"resale-sync-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSyncRequested publishes SyncRequested event
func (ep *EventPublisher) PublishSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error {
	key := fmt.Sprintf("style-%d-%s", event.StyleID, event.Provider)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncCompleted publishes SyncCompleted event
func (ep *EventPublisher) PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error {
	key := fmt.Sprintf("style-%d-%s", event.StyleID, event.Provider)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSyncFailed publishes SyncFailed event
func (ep *EventPublisher) PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error {
	key := fmt.Sprintf("style-%d-%s", event.StyleID, event.Provider)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishMappingInvalidated publishes MappingInvalidated event
func (ep *EventPublisher) PublishMappingInvalidated(ctx context.Context, event *models.MappingInvalidatedEvent) error {
	key := fmt.Sprintf("style-%d-%s", event.StyleID, event.Provider)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishItemSold publishes ItemSold event
func (ep *EventPublisher) PublishItemSold(ctx context.Context, event *models.ItemSoldEvent) error {
	key := fmt.Sprintf("item-%d", event.ItemID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishSaleUndone publishes SaleUndone event
func (ep *EventPublisher) PublishSaleUndone(ctx context.Context, event *models.SaleUndoneEvent) error {
	key := fmt.Sprintf("sale-%d", event.SaleID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReconciliationNeeded publishes the operator alert for a partial
// inventory move. Consumers must never auto-retry these.
func (ep *EventPublisher) PublishReconciliationNeeded(ctx context.Context, event *models.ReconciliationNeededEvent) error {
	key := fmt.Sprintf("item-%d", event.ItemID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSyncRequested func(context.Context, *models.SyncRequestedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSyncRequested registers a handler for SyncRequested events
func (eh *EventHandler) OnSyncRequested(handler func(context.Context, *models.SyncRequestedEvent) error) {
	eh.onSyncRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeSyncRequested:
		if eh.onSyncRequested != nil {
			var event models.SyncRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SyncRequested event: %w", err)
			}
			return eh.onSyncRequested(ctx, &event)
		}

	default:
		// Other event types on this topic are outbound only.
	}

	return nil
}
