package models

import "time"

// CatalogStyle represents a sellable product style. Created on first
// successful provider search and never deleted; brand/name/colorway are
// backfilled from whichever provider answers first.
type CatalogStyle struct {
	ID        int64     `db:"id" json:"id"`
	StyleCode string    `db:"style_code" json:"style_code"`
	Brand     string    `db:"brand" json:"brand,omitempty"`
	Name      string    `db:"name" json:"name,omitempty"`
	Colorway  string    `db:"colorway" json:"colorway,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ProviderMapping links a style to a provider's internal product id.
// Marked invalid rather than deleted so history stays auditable.
type ProviderMapping struct {
	ID         int64     `db:"id" json:"id"`
	StyleID    int64     `db:"style_id" json:"style_id"`
	Provider   string    `db:"provider" json:"provider"`
	ExternalID string    `db:"external_id" json:"external_id"`
	Status     string    `db:"status" json:"status"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Mapping statuses
const (
	MappingStatusActive  = "ACTIVE"
	MappingStatusInvalid = "INVALID"
)

// Variant is a provider's (product, size) sellable unit. VariantValue is
// never empty; the normalizer's fallback chain guarantees that at write time.
type Variant struct {
	ID            int64     `db:"id" json:"id"`
	MappingID     int64     `db:"mapping_id" json:"mapping_id"`
	ExternalID    string    `db:"external_id" json:"external_id"`
	VariantValue  string    `db:"variant_value" json:"variant_value"`
	DisplaySize   string    `db:"display_size" json:"display_size"`
	CanonicalSize *float64  `db:"canonical_size" json:"canonical_size,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MarketSnapshot is one immutable timestamped price observation.
// Append-only; newer observations supersede, never overwrite.
type MarketSnapshot struct {
	ID         int64     `db:"id" json:"id"`
	Provider   string    `db:"provider" json:"provider"`
	StyleID    int64     `db:"style_id" json:"style_id"`
	MappingID  int64     `db:"mapping_id" json:"mapping_id"`
	VariantID  int64     `db:"variant_id" json:"variant_id"`
	Currency   string    `db:"currency" json:"currency"`
	Region     string    `db:"region" json:"region"`
	Flexible   bool      `db:"flexible" json:"flexible"`
	Consigned  bool      `db:"consigned" json:"consigned"`
	LowestAsk  *int64    `db:"lowest_ask" json:"lowest_ask,omitempty"`
	HighestBid *int64    `db:"highest_bid" json:"highest_bid,omitempty"`
	LastSale   *int64    `db:"last_sale" json:"last_sale,omitempty"`
	SaleCount  *int      `db:"sale_count" json:"sale_count,omitempty"`
	ObservedAt time.Time `db:"observed_at" json:"observed_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// MarketLatest is the derived most-recent snapshot per unique key, joined
// with the variant's size info for unification.
type MarketLatest struct {
	Provider      string    `db:"provider" json:"provider"`
	StyleID       int64     `db:"style_id" json:"style_id"`
	VariantID     int64     `db:"variant_id" json:"variant_id"`
	DisplaySize   string    `db:"display_size" json:"display_size"`
	CanonicalSize *float64  `db:"canonical_size" json:"canonical_size,omitempty"`
	Currency      string    `db:"currency" json:"currency"`
	Region        string    `db:"region" json:"region"`
	Flexible      bool      `db:"flexible" json:"flexible"`
	Consigned     bool      `db:"consigned" json:"consigned"`
	LowestAsk     *int64    `db:"lowest_ask" json:"lowest_ask,omitempty"`
	HighestBid    *int64    `db:"highest_bid" json:"highest_bid,omitempty"`
	LastSale      *int64    `db:"last_sale" json:"last_sale,omitempty"`
	ObservedAt    time.Time `db:"observed_at" json:"observed_at"`
}

// SyncJob is a request to refresh one (style, provider) pair. At most one
// active (pending/processing) job exists per pair, enforced by a partial
// unique index so terminal history is retained.
type SyncJob struct {
	ID          int64      `db:"id" json:"id"`
	StyleID     int64      `db:"style_id" json:"style_id"`
	Provider    string     `db:"provider" json:"provider"`
	Status      string     `db:"status" json:"status"`
	Priority    int        `db:"priority" json:"priority"`
	Attempts    int        `db:"attempts" json:"attempts"`
	MaxAttempts int        `db:"max_attempts" json:"max_attempts"`
	LastError   string     `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *time.Time `db:"next_retry_at" json:"next_retry_at,omitempty"`
	StartedAt   *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Sync job statuses
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusSuccess    = "SUCCESS"
	JobStatusFailed     = "FAILED"
)

// RateBudget tracks calls used within one hour-aligned window for one
// provider. Budgets reset implicitly by keying on the window.
type RateBudget struct {
	Provider    string    `db:"provider" json:"provider"`
	WindowStart time.Time `db:"window_start" json:"window_start"`
	Used        int       `db:"used" json:"used"`
	CallLimit   int       `db:"call_limit" json:"call_limit"`
}

// SyncRun is a summary of one scheduler run, recorded for observability.
type SyncRun struct {
	ID         int64     `db:"id" json:"id"`
	StartedAt  time.Time `db:"started_at" json:"started_at"`
	FinishedAt time.Time `db:"finished_at" json:"finished_at"`
	Selected   int       `db:"selected" json:"selected"`
	Succeeded  int       `db:"succeeded" json:"succeeded"`
	Failed     int       `db:"failed" json:"failed"`
	Deferred   int       `db:"deferred" json:"deferred"`
	Note       string    `db:"note" json:"note,omitempty"`
}

// InventoryItem is an owned, unsold unit. The row is deleted on mark-sold;
// its absence is the "not in inventory" signal.
type InventoryItem struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"user_id"`
	StyleID       int64     `db:"style_id" json:"style_id"`
	DisplaySize   string    `db:"display_size" json:"display_size"`
	CanonicalSize *float64  `db:"canonical_size" json:"canonical_size,omitempty"`
	PurchaseCents int64     `db:"purchase_cents" json:"purchase_cents"`
	Condition     string    `db:"condition" json:"condition"`
	Status        string    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Inventory item statuses
const (
	ItemStatusActive = "ACTIVE"
)

// SaleRecord is a completed sale. OriginalItemID is unique so a given item
// can only be marked sold once while the sale record exists.
type SaleRecord struct {
	ID             int64     `db:"id" json:"id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	OriginalItemID int64     `db:"original_item_id" json:"original_item_id"`
	StyleID        int64     `db:"style_id" json:"style_id"`
	DisplaySize    string    `db:"display_size" json:"display_size"`
	CanonicalSize  *float64  `db:"canonical_size" json:"canonical_size,omitempty"`
	PurchaseCents  int64     `db:"purchase_cents" json:"purchase_cents"`
	SaleCents      int64     `db:"sale_cents" json:"sale_cents"`
	FeesCents      int64     `db:"fees_cents" json:"fees_cents"`
	Condition      string    `db:"condition" json:"condition"`
	SoldAt         time.Time `db:"sold_at" json:"sold_at"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// ProcessedEvent for consumer idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
