package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memInventoryStore emulates the atomic item/sale moves in memory,
// including the unique constraint on a sale's original item id.
type memInventoryStore struct {
	items  map[int64]*models.InventoryItem
	sales  map[int64]*models.SaleRecord
	nextID int64
}

func newMemInventoryStore() *memInventoryStore {
	return &memInventoryStore{
		items:  make(map[int64]*models.InventoryItem),
		sales:  make(map[int64]*models.SaleRecord),
		nextID: 1000,
	}
}

func (m *memInventoryStore) GetInventoryItem(ctx context.Context, id int64) (*models.InventoryItem, error) {
	if item, ok := m.items[id]; ok {
		clone := *item
		return &clone, nil
	}
	return nil, nil
}

func (m *memInventoryStore) InventoryForUser(ctx context.Context, userID int64) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	for _, item := range m.items {
		if item.UserID == userID {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (m *memInventoryStore) CreateInventoryItem(ctx context.Context, item *models.InventoryItem) error {
	m.nextID++
	item.ID = m.nextID
	item.CreatedAt = time.Now()
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *memInventoryStore) InventoryItemExists(ctx context.Context, id int64) (bool, error) {
	_, ok := m.items[id]
	return ok, nil
}

func (m *memInventoryStore) GetSaleRecord(ctx context.Context, id int64) (*models.SaleRecord, error) {
	if sale, ok := m.sales[id]; ok {
		clone := *sale
		return &clone, nil
	}
	return nil, nil
}

func (m *memInventoryStore) GetSaleByOriginalItem(ctx context.Context, itemID int64) (*models.SaleRecord, error) {
	for _, sale := range m.sales {
		if sale.OriginalItemID == itemID {
			clone := *sale
			return &clone, nil
		}
	}
	return nil, nil
}

func (m *memInventoryStore) SalesForUser(ctx context.Context, userID int64) ([]models.SaleRecord, error) {
	var sales []models.SaleRecord
	for _, sale := range m.sales {
		if sale.UserID == userID {
			sales = append(sales, *sale)
		}
	}
	return sales, nil
}

func (m *memInventoryStore) MoveItemToSale(ctx context.Context, item *models.InventoryItem, sale *models.SaleRecord) (*models.SaleRecord, error) {
	for _, existing := range m.sales {
		if existing.OriginalItemID == sale.OriginalItemID {
			return nil, fmt.Errorf("item %d already has a sale record: %w", item.ID, provider.ErrAlreadyDone)
		}
	}
	if _, ok := m.items[item.ID]; !ok {
		return nil, fmt.Errorf("inventory item %d vanished mid-move: %w", item.ID, provider.ErrConstraint)
	}

	m.nextID++
	created := *sale
	created.ID = m.nextID
	created.CreatedAt = time.Now()
	m.sales[created.ID] = &created
	delete(m.items, item.ID)

	clone := created
	return &clone, nil
}

func (m *memInventoryStore) MoveSaleToItem(ctx context.Context, sale *models.SaleRecord, item *models.InventoryItem, reuseID bool) (*models.InventoryItem, error) {
	if _, ok := m.sales[sale.ID]; !ok {
		return nil, fmt.Errorf("sale record %d vanished mid-move: %w", sale.ID, provider.ErrConstraint)
	}

	restored := *item
	if reuseID {
		if _, taken := m.items[item.ID]; taken {
			return nil, fmt.Errorf("item id %d taken while undoing sale %d: %w", item.ID, sale.ID, provider.ErrAlreadyDone)
		}
	} else {
		m.nextID++
		restored.ID = m.nextID
	}
	restored.CreatedAt = time.Now()

	clone := restored
	m.items[restored.ID] = &clone
	delete(m.sales, sale.ID)
	return &restored, nil
}

// memInvPublisher records inventory lifecycle events.
type memInvPublisher struct {
	sold           []*models.ItemSoldEvent
	undone         []*models.SaleUndoneEvent
	reconciliation []*models.ReconciliationNeededEvent
}

func (p *memInvPublisher) PublishItemSold(ctx context.Context, event *models.ItemSoldEvent) error {
	p.sold = append(p.sold, event)
	return nil
}

func (p *memInvPublisher) PublishSaleUndone(ctx context.Context, event *models.SaleUndoneEvent) error {
	p.undone = append(p.undone, event)
	return nil
}

func (p *memInvPublisher) PublishReconciliationNeeded(ctx context.Context, event *models.ReconciliationNeededEvent) error {
	p.reconciliation = append(p.reconciliation, event)
	return nil
}

func seedItem(t *testing.T, store *memInventoryStore, svc *InventoryService, userID int64) *models.InventoryItem {
	t.Helper()
	item, err := svc.AddItem(context.Background(), userID, &models.InventoryItem{
		StyleID:       7,
		DisplaySize:   "US 9.5",
		PurchaseCents: 16000,
		Condition:     "new",
	})
	require.NoError(t, err)
	return item
}

func TestMarkSoldMovesItemToSale(t *testing.T) {
	store := newMemInventoryStore()
	publisher := &memInvPublisher{}
	svc := NewInventoryService(store, publisher)

	item := seedItem(t, store, svc, 1)

	sale, existed, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 21000, FeesCents: 1900})
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Equal(t, item.ID, sale.OriginalItemID)
	assert.Equal(t, int64(21000), sale.SaleCents)
	assert.Equal(t, item.PurchaseCents, sale.PurchaseCents)

	// The item is gone from inventory; the unit lives in exactly one table.
	items, err := svc.ListItems(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, items)

	sales, err := svc.ListSales(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, sales, 1)

	require.Len(t, publisher.sold, 1)
	assert.Equal(t, sale.ID, publisher.sold[0].SaleID)
}

func TestMarkSoldIsIdempotent(t *testing.T) {
	store := newMemInventoryStore()
	publisher := &memInvPublisher{}
	svc := NewInventoryService(store, publisher)

	item := seedItem(t, store, svc, 1)

	first, existed, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 21000})
	require.NoError(t, err)
	require.False(t, existed)

	// A retried request returns the original sale untouched.
	second, existed, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 99999})
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(21000), second.SaleCents)

	sales, err := svc.ListSales(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, sales, 1)
	assert.Len(t, publisher.sold, 1, "no second ItemSold event")
}

func TestMarkSoldEnforcesOwnership(t *testing.T) {
	store := newMemInventoryStore()
	svc := NewInventoryService(store, nil)

	item := seedItem(t, store, svc, 1)

	_, _, err := svc.MarkSold(context.Background(), 2, item.ID, SaleDetails{SaleCents: 21000})
	assert.ErrorIs(t, err, ErrNotOwner)

	_, _, err = svc.MarkSold(context.Background(), 1, 9999, SaleDetails{SaleCents: 21000})
	assert.ErrorIs(t, err, ErrItemNotFound)
}

func TestUndoSaleRestoresOriginalID(t *testing.T) {
	store := newMemInventoryStore()
	publisher := &memInvPublisher{}
	svc := NewInventoryService(store, publisher)

	item := seedItem(t, store, svc, 1)
	sale, _, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 21000})
	require.NoError(t, err)

	restored, err := svc.UndoSale(context.Background(), 1, sale.ID)
	require.NoError(t, err)

	assert.Equal(t, item.ID, restored.ID)
	assert.Equal(t, item.PurchaseCents, restored.PurchaseCents)
	assert.Equal(t, models.ItemStatusActive, restored.Status)

	sales, err := svc.ListSales(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, sales)

	require.Len(t, publisher.undone, 1)
	assert.True(t, publisher.undone[0].ReusedID)
}

func TestUndoSaleIssuesFreshIDWhenTaken(t *testing.T) {
	store := newMemInventoryStore()
	publisher := &memInvPublisher{}
	svc := NewInventoryService(store, publisher)

	item := seedItem(t, store, svc, 1)
	sale, _, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 21000})
	require.NoError(t, err)

	// Another item now occupies the original id.
	squatter := *item
	store.items[item.ID] = &squatter

	restored, err := svc.UndoSale(context.Background(), 1, sale.ID)
	require.NoError(t, err)

	assert.NotEqual(t, item.ID, restored.ID)
	require.Len(t, publisher.undone, 1)
	assert.False(t, publisher.undone[0].ReusedID)
}

func TestUndoSaleErrors(t *testing.T) {
	store := newMemInventoryStore()
	svc := NewInventoryService(store, nil)

	_, err := svc.UndoSale(context.Background(), 1, 404)
	assert.ErrorIs(t, err, ErrSaleNotFound)

	item := seedItem(t, store, svc, 1)
	sale, _, err := svc.MarkSold(context.Background(), 1, item.ID, SaleDetails{SaleCents: 21000})
	require.NoError(t, err)

	_, err = svc.UndoSale(context.Background(), 2, sale.ID)
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestAddItemDerivesCanonicalSize(t *testing.T) {
	store := newMemInventoryStore()
	svc := NewInventoryService(store, nil)

	item, err := svc.AddItem(context.Background(), 1, &models.InventoryItem{
		StyleID:     7,
		DisplaySize: "US 10.5",
	})
	require.NoError(t, err)
	require.NotNil(t, item.CanonicalSize)
	assert.Equal(t, 10.5, *item.CanonicalSize)

	// An unparseable label still produces a valid item.
	odd, err := svc.AddItem(context.Background(), 1, &models.InventoryItem{
		StyleID:     7,
		DisplaySize: "One Size",
	})
	require.NoError(t, err)
	assert.Nil(t, odd.CanonicalSize)
}
