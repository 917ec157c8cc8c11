package store

import (
	"context"
	"database/sql"
	"fmt"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/provider"

	"github.com/lib/pq"
)

// GetInventoryItem retrieves an inventory item, nil if the row is gone.
// A missing row is the "not in inventory" signal, not an error.
func (s *Store) GetInventoryItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	var item models.InventoryItem
	err := s.db.GetContext(ctx, &item, "SELECT * FROM inventory_items WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InventoryForUser retrieves all active inventory items owned by a user
func (s *Store) InventoryForUser(ctx context.Context, userID int64) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM inventory_items WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return items, err
}

// CreateInventoryItem inserts a manually added item
func (s *Store) CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	query := `
		INSERT INTO inventory_items (user_id, style_id, display_size, canonical_size, purchase_cents, condition, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, item, query,
		item.UserID, item.StyleID, item.DisplaySize, item.CanonicalSize,
		item.PurchaseCents, item.Condition, item.Status)
}

// InventoryItemExists reports whether an item id is currently occupied
func (s *Store) InventoryItemExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM inventory_items WHERE id = $1)", id)
	return exists, err
}

// GetSaleRecord retrieves a sale record, nil if absent
func (s *Store) GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error) {
	var sale models.SaleRecord
	err := s.db.GetContext(ctx, &sale, "SELECT * FROM sale_records WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// GetSaleByOriginalItem retrieves the sale referencing an original item id,
// nil if none exists. This is the mark-sold idempotency guard.
func (s *Store) GetSaleByOriginalItem(ctx context.Context, itemID int64) (*models.SaleRecord, error) {
	var sale models.SaleRecord
	err := s.db.GetContext(ctx, &sale,
		"SELECT * FROM sale_records WHERE original_item_id = $1", itemID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// SalesForUser retrieves all sale records owned by a user
func (s *Store) SalesForUser(ctx context.Context, userID int64) ([]models.SaleRecord, error) {
	var sales []models.SaleRecord
	err := s.db.SelectContext(ctx, &sales,
		"SELECT * FROM sale_records WHERE user_id = $1 ORDER BY sold_at DESC", userID)
	return sales, err
}

// MoveItemToSale atomically moves an inventory item into a sale record:
// insert the sale, then delete the item, both in one transaction with the
// insert strictly first. The unique constraint on original_item_id turns a
// lost race into ErrAlreadyDone so the caller can return the existing sale.
func (s *Store) MoveItemToSale(ctx context.Context, item *models.InventoryItem, sale *models.SaleRecord) (*models.SaleRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO sale_records
			(user_id, original_item_id, style_id, display_size, canonical_size,
			 purchase_cents, sale_cents, fees_cents, condition, sold_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`

	created := *sale
	err = tx.GetContext(ctx, &created, query,
		sale.UserID, sale.OriginalItemID, sale.StyleID, sale.DisplaySize,
		sale.CanonicalSize, sale.PurchaseCents, sale.SaleCents, sale.FeesCents,
		sale.Condition, sale.SoldAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("item %d already has a sale record: %w", item.ID, provider.ErrAlreadyDone)
		}
		return nil, fmt.Errorf("failed to insert sale record: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM inventory_items WHERE id = $1", item.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete inventory item %d after sale insert: %w", item.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("inventory item %d vanished mid-move: %w", item.ID, provider.ErrConstraint)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &created, nil
}

// MoveSaleToItem atomically restores a sale back into inventory: insert
// the item, then delete the sale record, insert strictly first. The item
// keeps its original id when the caller found it free, otherwise a fresh
// id is issued.
func (s *Store) MoveSaleToItem(ctx context.Context, sale *models.SaleRecord, item *models.InventoryItem, reuseID bool) (*models.InventoryItem, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	restored := *item
	if reuseID {
		query := `
			INSERT INTO inventory_items
				(id, user_id, style_id, display_size, canonical_size, purchase_cents, condition, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING created_at`
		err = tx.GetContext(ctx, &restored.CreatedAt, query,
			item.ID, item.UserID, item.StyleID, item.DisplaySize,
			item.CanonicalSize, item.PurchaseCents, item.Condition, item.Status)
	} else {
		query := `
			INSERT INTO inventory_items
				(user_id, style_id, display_size, canonical_size, purchase_cents, condition, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at`
		err = tx.GetContext(ctx, &restored, query,
			item.UserID, item.StyleID, item.DisplaySize,
			item.CanonicalSize, item.PurchaseCents, item.Condition, item.Status)
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("item id %d taken while undoing sale %d: %w", item.ID, sale.ID, provider.ErrAlreadyDone)
		}
		return nil, fmt.Errorf("failed to restore inventory item: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM sale_records WHERE id = $1", sale.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete sale record %d after item insert: %w", sale.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return nil, fmt.Errorf("sale record %d vanished mid-move: %w", sale.ID, provider.ErrConstraint)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &restored, nil
}

// isUniqueViolation checks for Postgres unique_violation (23505)
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
