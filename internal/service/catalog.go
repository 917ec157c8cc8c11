package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/util"

	"go.uber.org/zap"
)

// ErrStyleNotFound is returned when no catalog style exists for an id.
var ErrStyleNotFound = errors.New("catalog style not found")

// ErrEmptyStyleCode rejects registration without a style code.
var ErrEmptyStyleCode = errors.New("style code is required")

// CatalogStore is the persistence surface the catalog service needs.
type CatalogStore interface {
	GetStyleByID(ctx context.Context, id int64) (*models.CatalogStyle, error)
	GetStyleByCode(ctx context.Context, styleCode string) (*models.CatalogStyle, error)
	CreateStyle(ctx context.Context, style *models.CatalogStyle) error
	MappingsForStyle(ctx context.Context, styleID int64) ([]models.ProviderMapping, error)
	VariantsForMapping(ctx context.Context, mappingID int64) ([]models.Variant, error)
}

// JobEnqueuer enqueues sync jobs. Implemented by Queue.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, styleID int64, provider string, priority int) (bool, error)
}

// StyleDetail is a style with its provider mappings and known variants.
type StyleDetail struct {
	Style    models.CatalogStyle `json:"style"`
	Mappings []MappingDetail     `json:"mappings"`
}

// MappingDetail is one provider mapping plus its variants.
type MappingDetail struct {
	Mapping  models.ProviderMapping `json:"mapping"`
	Variants []models.Variant       `json:"variants"`
}

// CatalogService registers tracked styles and serves their details.
// Brand/name/colorway stay empty at registration; the first provider that
// answers a catalog search backfills them.
type CatalogService struct {
	store     CatalogStore
	queue     JobEnqueuer
	providers map[string]int
	logger    *zap.Logger
}

// NewCatalogService creates a catalog service. providers maps each
// configured provider name to the default sync priority for new styles.
func NewCatalogService(store CatalogStore, queue JobEnqueuer, providers map[string]int) *CatalogService {
	return &CatalogService{
		store:     store,
		queue:     queue,
		providers: providers,
		logger:    util.GetLogger(),
	}
}

// RegisterStyle starts tracking a style code. Registering an
// already-tracked code returns the existing style; either way a sync job is
// requested for every configured provider, with dedupe absorbing repeats.
func (cs *CatalogService) RegisterStyle(ctx context.Context, styleCode string) (*models.CatalogStyle, bool, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.RegisterStyle")
	defer span.End()

	styleCode = strings.TrimSpace(styleCode)
	if styleCode == "" {
		return nil, false, ErrEmptyStyleCode
	}

	created := false
	style, err := cs.store.GetStyleByCode(ctx, styleCode)
	if err != nil {
		return nil, false, err
	}
	if style == nil {
		style = &models.CatalogStyle{StyleCode: styleCode}
		if err := cs.store.CreateStyle(ctx, style); err != nil {
			return nil, false, fmt.Errorf("failed to create style %s: %w", styleCode, err)
		}
		created = true
		cs.logger.Info("Catalog style registered",
			zap.Int64("style_id", style.ID),
			zap.String("style_code", styleCode))
	}

	for providerName, priority := range cs.providers {
		if _, err := cs.queue.Enqueue(ctx, style.ID, providerName, priority); err != nil {
			cs.logger.Error("Failed to enqueue initial sync",
				zap.Int64("style_id", style.ID),
				zap.String("provider", providerName),
				zap.Error(err))
		}
	}

	return style, created, nil
}

// StyleDetail returns a style with its mappings and known variants.
func (cs *CatalogService) StyleDetail(ctx context.Context, styleID int64) (*StyleDetail, error) {
	style, err := cs.store.GetStyleByID(ctx, styleID)
	if err != nil {
		return nil, err
	}
	if style == nil {
		return nil, ErrStyleNotFound
	}

	mappings, err := cs.store.MappingsForStyle(ctx, styleID)
	if err != nil {
		return nil, err
	}

	detail := &StyleDetail{Style: *style, Mappings: make([]MappingDetail, 0, len(mappings))}
	for _, m := range mappings {
		variants, err := cs.store.VariantsForMapping(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		detail.Mappings = append(detail.Mappings, MappingDetail{Mapping: m, Variants: variants})
	}
	return detail, nil
}
