package store

import (
	"context"
	"database/sql"
	"fmt"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/provider"
)

// GetStyleByID retrieves a catalog style by ID, nil if absent
func (s *Store) GetStyleByID(ctx context.Context, id int64) (*models.CatalogStyle, error) {
	var style models.CatalogStyle
	err := s.db.GetContext(ctx, &style, "SELECT * FROM catalog_styles WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &style, nil
}

// GetStyleByCode retrieves a catalog style by its style code, nil if absent
func (s *Store) GetStyleByCode(ctx context.Context, styleCode string) (*models.CatalogStyle, error) {
	var style models.CatalogStyle
	err := s.db.GetContext(ctx, &style, "SELECT * FROM catalog_styles WHERE style_code = $1", styleCode)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &style, nil
}

// CreateStyle inserts a catalog style. Styles are never deleted.
func (s *Store) CreateStyle(ctx context.Context, style *models.CatalogStyle) error {
	query := `
		INSERT INTO catalog_styles (style_code, brand, name, colorway)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, style, query,
		style.StyleCode, style.Brand, style.Name, style.Colorway)
}

// BackfillStyleMetadata fills empty brand/name/colorway fields from the
// first provider that answers. Already-filled fields are left alone.
func (s *Store) BackfillStyleMetadata(ctx context.Context, styleID int64, brand, name, colorway string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE catalog_styles SET
			brand    = CASE WHEN brand = ''    THEN $1 ELSE brand END,
			name     = CASE WHEN name = ''     THEN $2 ELSE name END,
			colorway = CASE WHEN colorway = '' THEN $3 ELSE colorway END,
			updated_at = NOW()
		WHERE id = $4`,
		brand, name, colorway, styleID)
	return err
}

// GetMapping retrieves the mapping for a (style, provider) pair, nil if absent
func (s *Store) GetMapping(ctx context.Context, styleID int64, providerName string) (*models.ProviderMapping, error) {
	var mapping models.ProviderMapping
	err := s.db.GetContext(ctx, &mapping,
		"SELECT * FROM provider_mappings WHERE style_id = $1 AND provider = $2", styleID, providerName)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// MappingsForStyle retrieves all provider mappings for a style
func (s *Store) MappingsForStyle(ctx context.Context, styleID int64) ([]models.ProviderMapping, error) {
	var mappings []models.ProviderMapping
	err := s.db.SelectContext(ctx, &mappings,
		"SELECT * FROM provider_mappings WHERE style_id = $1 ORDER BY provider", styleID)
	return mappings, err
}

// CreateMapping inserts a mapping created lazily on first catalog search.
func (s *Store) CreateMapping(ctx context.Context, mapping *models.ProviderMapping) error {
	query := `
		INSERT INTO provider_mappings (style_id, provider, external_id, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, mapping, query,
		mapping.StyleID, mapping.Provider, mapping.ExternalID, mapping.Status)
}

// MarkMappingInvalid flags a mapping whose upstream product is gone. The
// row stays for audit; downstream reads must treat it as unavailable.
func (s *Store) MarkMappingInvalid(ctx context.Context, mappingID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE provider_mappings SET status = $1, updated_at = NOW() WHERE id = $2",
		models.MappingStatusInvalid, mappingID)
	return err
}

// UpsertVariant inserts or refreshes a variant. The variant_value not-null
// invariant is enforced here: an empty value is a constraint violation and
// is raised, never logged away.
func (s *Store) UpsertVariant(ctx context.Context, variant *models.Variant) error {
	if variant.VariantValue == "" {
		return fmt.Errorf("variant %s has empty variant_value: %w", variant.ExternalID, provider.ErrConstraint)
	}

	query := `
		INSERT INTO variants (mapping_id, external_id, variant_value, display_size, canonical_size)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mapping_id, external_id) DO UPDATE
		SET variant_value = EXCLUDED.variant_value,
		    display_size = EXCLUDED.display_size,
		    canonical_size = EXCLUDED.canonical_size
		RETURNING id, created_at`

	err := s.db.GetContext(ctx, variant, query,
		variant.MappingID, variant.ExternalID, variant.VariantValue,
		variant.DisplaySize, variant.CanonicalSize)
	if err != nil {
		return fmt.Errorf("failed to upsert variant %s: %w", variant.ExternalID, err)
	}
	return nil
}

// VariantsForMapping retrieves all variants owned by a mapping
func (s *Store) VariantsForMapping(ctx context.Context, mappingID int64) ([]models.Variant, error) {
	var variants []models.Variant
	err := s.db.SelectContext(ctx, &variants,
		"SELECT * FROM variants WHERE mapping_id = $1 ORDER BY id", mappingID)
	return variants, err
}
