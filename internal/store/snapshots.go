package store

import (
	"context"
	"fmt"

	"resale-sync-service/internal/models"
)

// InsertSnapshot appends a market snapshot. The insert is skipped (not an
// error) when a snapshot for the same key with an equal-or-newer
// observation timestamp already exists, so concurrent workers racing on one
// key can never make history look out of order. Returns whether a row was
// written.
func (s *Store) InsertSnapshot(ctx context.Context, snap *models.MarketSnapshot) (bool, error) {
	query := `
		INSERT INTO market_snapshots
			(provider, style_id, mapping_id, variant_id, currency, region,
			 flexible, consigned, lowest_ask, highest_bid, last_sale, sale_count, observed_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		WHERE NOT EXISTS (
			SELECT 1 FROM market_snapshots
			WHERE provider = $1 AND variant_id = $4 AND currency = $5
			  AND region = $6 AND flexible = $7 AND consigned = $8
			  AND observed_at >= $13
		)`

	res, err := s.db.ExecContext(ctx, query,
		snap.Provider, snap.StyleID, snap.MappingID, snap.VariantID,
		snap.Currency, snap.Region, snap.Flexible, snap.Consigned,
		snap.LowestAsk, snap.HighestBid, snap.LastSale, snap.SaleCount,
		snap.ObservedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// LatestForStyle computes the latest projection for a style: the
// max-timestamp snapshot per (provider, variant, currency, region, tier)
// key, joined with variant size info. Snapshots belonging to invalidated
// mappings are excluded so stale prices never masquerade as current.
func (s *Store) LatestForStyle(ctx context.Context, styleID int64) ([]models.MarketLatest, error) {
	query := `
		SELECT DISTINCT ON (ms.provider, ms.variant_id, ms.currency, ms.region, ms.flexible, ms.consigned)
			ms.provider, ms.style_id, ms.variant_id,
			v.display_size, v.canonical_size,
			ms.currency, ms.region, ms.flexible, ms.consigned,
			ms.lowest_ask, ms.highest_bid, ms.last_sale, ms.observed_at
		FROM market_snapshots ms
		JOIN variants v ON v.id = ms.variant_id
		JOIN provider_mappings pm ON pm.id = ms.mapping_id
		WHERE ms.style_id = $1 AND pm.status = $2
		ORDER BY ms.provider, ms.variant_id, ms.currency, ms.region, ms.flexible, ms.consigned,
			ms.observed_at DESC`

	var latest []models.MarketLatest
	err := s.db.SelectContext(ctx, &latest, query, styleID, models.MappingStatusActive)
	return latest, err
}

// PurgeSnapshotsForMapping removes price history for an invalidated
// mapping so downstream views show "unavailable" instead of stale numbers.
func (s *Store) PurgeSnapshotsForMapping(ctx context.Context, mappingID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM market_snapshots WHERE mapping_id = $1", mappingID)
	if err != nil {
		return 0, fmt.Errorf("failed to purge snapshots for mapping %d: %w", mappingID, err)
	}
	return res.RowsAffected()
}
