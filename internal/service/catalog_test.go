package service

import (
	"context"
	"testing"

	"resale-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memCatalogStore keeps styles, mappings and variants in memory.
type memCatalogStore struct {
	stylesByID   map[int64]*models.CatalogStyle
	stylesByCode map[string]*models.CatalogStyle
	mappings     map[int64][]models.ProviderMapping
	variants     map[int64][]models.Variant
	nextID       int64
}

func newMemCatalogStore() *memCatalogStore {
	return &memCatalogStore{
		stylesByID:   make(map[int64]*models.CatalogStyle),
		stylesByCode: make(map[string]*models.CatalogStyle),
		mappings:     make(map[int64][]models.ProviderMapping),
		variants:     make(map[int64][]models.Variant),
	}
}

func (m *memCatalogStore) GetStyleByID(ctx context.Context, id int64) (*models.CatalogStyle, error) {
	return m.stylesByID[id], nil
}

func (m *memCatalogStore) GetStyleByCode(ctx context.Context, styleCode string) (*models.CatalogStyle, error) {
	return m.stylesByCode[styleCode], nil
}

func (m *memCatalogStore) CreateStyle(ctx context.Context, style *models.CatalogStyle) error {
	m.nextID++
	style.ID = m.nextID
	m.stylesByID[style.ID] = style
	m.stylesByCode[style.StyleCode] = style
	return nil
}

func (m *memCatalogStore) MappingsForStyle(ctx context.Context, styleID int64) ([]models.ProviderMapping, error) {
	return m.mappings[styleID], nil
}

func (m *memCatalogStore) VariantsForMapping(ctx context.Context, mappingID int64) ([]models.Variant, error) {
	return m.variants[mappingID], nil
}

// countingEnqueuer records enqueue requests per (style, provider).
type countingEnqueuer struct {
	requests map[string]int
}

func newCountingEnqueuer() *countingEnqueuer {
	return &countingEnqueuer{requests: make(map[string]int)}
}

func (e *countingEnqueuer) Enqueue(ctx context.Context, styleID int64, provider string, priority int) (bool, error) {
	e.requests[provider]++
	return true, nil
}

func TestRegisterStyleCreatesOnceAndFansOut(t *testing.T) {
	store := newMemCatalogStore()
	enqueuer := newCountingEnqueuer()
	svc := NewCatalogService(store, enqueuer, map[string]int{"exchange": 3, "peer": 2})

	style, created, err := svc.RegisterStyle(context.Background(), "DZ5485-612")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotZero(t, style.ID)

	// Every configured provider gets an initial sync request.
	assert.Equal(t, 1, enqueuer.requests["exchange"])
	assert.Equal(t, 1, enqueuer.requests["peer"])

	// Re-registering the same code returns the existing style; the repeated
	// enqueues are harmless because queue dedupe absorbs them.
	again, created, err := svc.RegisterStyle(context.Background(), "DZ5485-612")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, style.ID, again.ID)
}

func TestRegisterStyleRejectsEmptyCode(t *testing.T) {
	svc := NewCatalogService(newMemCatalogStore(), newCountingEnqueuer(), nil)

	_, _, err := svc.RegisterStyle(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyStyleCode)
}

func TestStyleDetail(t *testing.T) {
	store := newMemCatalogStore()
	svc := NewCatalogService(store, newCountingEnqueuer(), nil)

	style, _, err := svc.RegisterStyle(context.Background(), "GX1234")
	require.NoError(t, err)

	store.mappings[style.ID] = []models.ProviderMapping{
		{ID: 10, StyleID: style.ID, Provider: "exchange", Status: models.MappingStatusActive},
	}
	store.variants[10] = []models.Variant{
		{ID: 100, MappingID: 10, VariantValue: "9.5", DisplaySize: "US 9.5"},
	}

	detail, err := svc.StyleDetail(context.Background(), style.ID)
	require.NoError(t, err)
	assert.Equal(t, "GX1234", detail.Style.StyleCode)
	require.Len(t, detail.Mappings, 1)
	assert.Len(t, detail.Mappings[0].Variants, 1)

	_, err = svc.StyleDetail(context.Background(), 999)
	assert.ErrorIs(t, err, ErrStyleNotFound)
}
