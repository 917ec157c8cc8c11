package models

import "time"

// Event types
const (
	EventTypeSyncRequested        = "SYNC_REQUESTED"
	EventTypeSyncCompleted        = "SYNC_COMPLETED"
	EventTypeSyncFailed           = "SYNC_FAILED"
	EventTypeMappingInvalidated   = "MAPPING_INVALIDATED"
	EventTypeItemSold             = "ITEM_SOLD"
	EventTypeSaleUndone           = "SALE_UNDONE"
	EventTypeReconciliationNeeded = "RECONCILIATION_NEEDED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncRequestedEvent asks for a refresh of one (style, provider) pair.
// Consumed by the sync trigger worker; normal dedupe rules apply.
type SyncRequestedEvent struct {
	BaseEvent
	StyleID  int64  `json:"style_id"`
	Provider string `json:"provider"`
	Priority int    `json:"priority"`
}

// SyncCompletedEvent published when a sync job finishes successfully
type SyncCompletedEvent struct {
	BaseEvent
	JobID     int64  `json:"job_id"`
	StyleID   int64  `json:"style_id"`
	Provider  string `json:"provider"`
	Variants  int    `json:"variants"`
	Snapshots int    `json:"snapshots"`
}

// SyncFailedEvent published when a sync job fails (terminal or retryable)
type SyncFailedEvent struct {
	BaseEvent
	JobID    int64  `json:"job_id"`
	StyleID  int64  `json:"style_id"`
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
	Terminal bool   `json:"terminal"`
}

// MappingInvalidatedEvent flags an upstream 404 for operator remap.
type MappingInvalidatedEvent struct {
	BaseEvent
	StyleID    int64  `json:"style_id"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id"`
}

// ItemSoldEvent published when an inventory item moves to a sale record
type ItemSoldEvent struct {
	BaseEvent
	UserID    int64 `json:"user_id"`
	ItemID    int64 `json:"item_id"`
	SaleID    int64 `json:"sale_id"`
	StyleID   int64 `json:"style_id"`
	SaleCents int64 `json:"sale_cents"`
}

// SaleUndoneEvent published when a sale record moves back to inventory
type SaleUndoneEvent struct {
	BaseEvent
	UserID   int64 `json:"user_id"`
	SaleID   int64 `json:"sale_id"`
	ItemID   int64 `json:"item_id"`
	StyleID  int64 `json:"style_id"`
	ReusedID bool  `json:"reused_id"`
}

// ReconciliationNeededEvent escalates a partial inventory move to the
// operator channel. Never auto-retried.
type ReconciliationNeededEvent struct {
	BaseEvent
	UserID int64  `json:"user_id"`
	ItemID int64  `json:"item_id"`
	SaleID int64  `json:"sale_id"`
	Reason string `json:"reason"`
}
