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

// ErrNotOwner is returned when a user touches an item or sale they do not own.
var ErrNotOwner = errors.New("resource belongs to another user")

// ErrItemNotFound is returned when neither an item nor its sale record exists.
var ErrItemNotFound = errors.New("inventory item not found")

// ErrSaleNotFound is returned when a sale record does not exist.
var ErrSaleNotFound = errors.New("sale record not found")

// InventoryStore is the persistence surface the inventory service needs.
type InventoryStore interface {
	GetInventoryItem(ctx context.Context, id int64) (*models.InventoryItem, error)
	InventoryForUser(ctx context.Context, userID int64) ([]models.InventoryItem, error)
	CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error
	InventoryItemExists(ctx context.Context, id int64) (bool, error)
	GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error)
	GetSaleByOriginalItem(ctx context.Context, itemID int64) (*models.SaleRecord, error)
	SalesForUser(ctx context.Context, userID int64) ([]models.SaleRecord, error)
	MoveItemToSale(ctx context.Context, item *models.InventoryItem, sale *models.SaleRecord) (*models.SaleRecord, error)
	MoveSaleToItem(ctx context.Context, sale *models.SaleRecord, item *models.InventoryItem, reuseID bool) (*models.InventoryItem, error)
}

// InventoryEventPublisher publishes inventory lifecycle events.
type InventoryEventPublisher interface {
	PublishItemSold(ctx context.Context, event *models.ItemSoldEvent) error
	PublishSaleUndone(ctx context.Context, event *models.SaleUndoneEvent) error
	PublishReconciliationNeeded(ctx context.Context, event *models.ReconciliationNeededEvent) error
}

// SaleDetails carries the caller-supplied facts of a sale.
type SaleDetails struct {
	SaleCents int64      `json:"sale_cents"`
	FeesCents int64      `json:"fees_cents"`
	SoldAt    *time.Time `json:"sold_at,omitempty"`
}

// InventoryService owns inventory items and their transitions to and from
// sale records. An item lives in exactly one of the two tables at any time.
type InventoryService struct {
	store     InventoryStore
	publisher InventoryEventPublisher
	logger    *zap.Logger
}

// NewInventoryService creates an inventory service
func NewInventoryService(store InventoryStore, publisher InventoryEventPublisher) *InventoryService {
	return &InventoryService{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
	}
}

// AddItem records a new inventory item for a user. The canonical size is
// derived from the display label when possible; a label that does not parse
// still produces a valid item, just without cross-provider comparability.
func (is *InventoryService) AddItem(ctx context.Context, userID int64, item *models.InventoryItem) (*models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.AddItem")
	defer span.End()

	item.UserID = userID
	item.Status = models.ItemStatusActive
	if item.CanonicalSize == nil && item.DisplaySize != "" {
		if canonical, ok := sizes.NormalizeDisplay(item.DisplaySize, ""); ok {
			item.CanonicalSize = &canonical
		}
	}

	if err := is.store.CreateInventoryItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create inventory item: %w", err)
	}

	is.logger.Info("Inventory item added",
		zap.Int64("item_id", item.ID),
		zap.Int64("user_id", userID),
		zap.Int64("style_id", item.StyleID))
	return item, nil
}

// GetItem retrieves one inventory item with an ownership check
func (is *InventoryService) GetItem(ctx context.Context, userID, itemID int64) (*models.InventoryItem, error) {
	item, err := is.store.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrItemNotFound
	}
	if item.UserID != userID {
		return nil, ErrNotOwner
	}
	return item, nil
}

// ListItems retrieves a user's active inventory
func (is *InventoryService) ListItems(ctx context.Context, userID int64) ([]models.InventoryItem, error) {
	return is.store.InventoryForUser(ctx, userID)
}

// ListSales retrieves a user's sale records
func (is *InventoryService) ListSales(ctx context.Context, userID int64) ([]models.SaleRecord, error) {
	return is.store.SalesForUser(ctx, userID)
}

// MarkSold moves an inventory item into a sale record. The returned bool
// reports whether the sale already existed: repeating the call for an
// already-sold item returns the original sale unchanged, so retried
// requests never produce a second sale or double-count revenue.
func (is *InventoryService) MarkSold(ctx context.Context, userID, itemID int64, details SaleDetails) (*models.SaleRecord, bool, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.MarkSold")
	defer span.End()

	item, err := is.store.GetInventoryItem(ctx, itemID)
	if err != nil {
		return nil, false, err
	}
	if item == nil {
		// The item may already have moved; serve the existing sale if so.
		existing, err := is.store.GetSaleByOriginalItem(ctx, itemID)
		if err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, ErrItemNotFound
		}
		if existing.UserID != userID {
			return nil, false, ErrNotOwner
		}
		return existing, true, nil
	}
	if item.UserID != userID {
		return nil, false, ErrNotOwner
	}

	soldAt := time.Now().UTC()
	if details.SoldAt != nil {
		soldAt = details.SoldAt.UTC()
	}

	sale := &models.SaleRecord{
		UserID:         item.UserID,
		OriginalItemID: item.ID,
		StyleID:        item.StyleID,
		DisplaySize:    item.DisplaySize,
		CanonicalSize:  item.CanonicalSize,
		PurchaseCents:  item.PurchaseCents,
		SaleCents:      details.SaleCents,
		FeesCents:      details.FeesCents,
		Condition:      item.Condition,
		SoldAt:         soldAt,
	}

	created, err := is.store.MoveItemToSale(ctx, item, sale)
	if err != nil {
		if errors.Is(err, provider.ErrAlreadyDone) {
			// Lost a race with a concurrent mark-sold for the same item.
			existing, lookupErr := is.store.GetSaleByOriginalItem(ctx, itemID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing != nil {
				return existing, true, nil
			}
		}
		if errors.Is(err, provider.ErrConstraint) {
			is.alertReconciliation(ctx, userID, itemID, 0, err.Error())
		}
		return nil, false, fmt.Errorf("failed to mark item %d sold: %w", itemID, err)
	}

	util.ItemsSoldTotal.Inc()
	is.publishItemSold(ctx, created)

	is.logger.Info("Inventory item marked sold",
		zap.Int64("item_id", itemID),
		zap.Int64("sale_id", created.ID),
		zap.Int64("user_id", userID),
		zap.Int64("sale_cents", created.SaleCents))
	return created, false, nil
}

// UndoSale moves a sale record back into inventory. The restored item
// reuses its original id when that id is still free; if another item took
// it meanwhile, the restore gets a fresh id instead of clobbering.
func (is *InventoryService) UndoSale(ctx context.Context, userID, saleID int64) (*models.InventoryItem, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.UndoSale")
	defer span.End()

	sale, err := is.store.GetSaleRecord(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, ErrSaleNotFound
	}
	if sale.UserID != userID {
		return nil, ErrNotOwner
	}

	item := &models.InventoryItem{
		ID:            sale.OriginalItemID,
		UserID:        sale.UserID,
		StyleID:       sale.StyleID,
		DisplaySize:   sale.DisplaySize,
		CanonicalSize: sale.CanonicalSize,
		PurchaseCents: sale.PurchaseCents,
		Condition:     sale.Condition,
		Status:        models.ItemStatusActive,
	}

	taken, err := is.store.InventoryItemExists(ctx, sale.OriginalItemID)
	if err != nil {
		return nil, err
	}
	reuseID := !taken

	restored, err := is.store.MoveSaleToItem(ctx, sale, item, reuseID)
	if errors.Is(err, provider.ErrAlreadyDone) && reuseID {
		// The original id got taken between the check and the insert.
		restored, err = is.store.MoveSaleToItem(ctx, sale, item, false)
		reuseID = false
	}
	if err != nil {
		if errors.Is(err, provider.ErrConstraint) {
			is.alertReconciliation(ctx, userID, sale.OriginalItemID, saleID, err.Error())
		}
		return nil, fmt.Errorf("failed to undo sale %d: %w", saleID, err)
	}

	util.SalesUndoneTotal.Inc()
	is.publishSaleUndone(ctx, sale, restored, reuseID)

	is.logger.Info("Sale undone",
		zap.Int64("sale_id", saleID),
		zap.Int64("item_id", restored.ID),
		zap.Int64("user_id", userID),
		zap.Bool("reused_id", reuseID))
	return restored, nil
}

func (is *InventoryService) publishItemSold(ctx context.Context, sale *models.SaleRecord) {
	if is.publisher == nil {
		return
	}
	event := &models.ItemSoldEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeItemSold,
			Timestamp: time.Now().UTC(),
		},
		UserID:    sale.UserID,
		ItemID:    sale.OriginalItemID,
		SaleID:    sale.ID,
		StyleID:   sale.StyleID,
		SaleCents: sale.SaleCents,
	}
	if err := is.publisher.PublishItemSold(ctx, event); err != nil {
		is.logger.Error("Failed to publish ItemSold event", zap.Int64("sale_id", sale.ID), zap.Error(err))
	}
}

func (is *InventoryService) publishSaleUndone(ctx context.Context, sale *models.SaleRecord, item *models.InventoryItem, reusedID bool) {
	if is.publisher == nil {
		return
	}
	event := &models.SaleUndoneEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSaleUndone,
			Timestamp: time.Now().UTC(),
		},
		UserID:   sale.UserID,
		SaleID:   sale.ID,
		ItemID:   item.ID,
		StyleID:  sale.StyleID,
		ReusedID: reusedID,
	}
	if err := is.publisher.PublishSaleUndone(ctx, event); err != nil {
		is.logger.Error("Failed to publish SaleUndone event", zap.Int64("sale_id", sale.ID), zap.Error(err))
	}
}

// alertReconciliation escalates a partially applied inventory move. These
// alerts need a human: automatic retries could double-apply the move.
func (is *InventoryService) alertReconciliation(ctx context.Context, userID, itemID, saleID int64, reason string) {
	util.ReconciliationAlertsTotal.Inc()
	is.logger.Error("Inventory move needs reconciliation",
		zap.Int64("user_id", userID),
		zap.Int64("item_id", itemID),
		zap.Int64("sale_id", saleID),
		zap.String("reason", reason))

	if is.publisher == nil {
		return
	}
	event := &models.ReconciliationNeededEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeReconciliationNeeded,
			Timestamp: time.Now().UTC(),
		},
		UserID: userID,
		ItemID: itemID,
		SaleID: saleID,
		Reason: reason,
	}
	if err := is.publisher.PublishReconciliationNeeded(ctx, event); err != nil {
		is.logger.Error("Failed to publish ReconciliationNeeded event", zap.Error(err))
	}
}
