package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"resale-sync-service/internal/models"
	"resale-sync-service/internal/sizes"
	"resale-sync-service/internal/util"

	"go.uber.org/zap"
)

// UnifierStore is the read surface the unification layer needs.
type UnifierStore interface {
	LatestForStyle(ctx context.Context, styleID int64) ([]models.MarketLatest, error)
	MappingsForStyle(ctx context.Context, styleID int64) ([]models.ProviderMapping, error)
}

// ViewCache caches serialized market views. May be nil.
type ViewCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Quote is one provider's contribution to a unified row.
type Quote struct {
	Provider    string `json:"provider"`
	DisplaySize string `json:"display_size"`
	Currency    string `json:"currency"`
	Region      string `json:"region"`
	Flexible    bool   `json:"flexible"`
	Consigned   bool   `json:"consigned"`
	LowestAsk   *int64 `json:"lowest_ask,omitempty"`
	HighestBid  *int64 `json:"highest_bid,omitempty"`
	LastSale    *int64 `json:"last_sale,omitempty"`
	// Base-currency conversions used for cross-provider comparison.
	AskBase *int64 `json:"ask_base,omitempty"`
	BidBase *int64 `json:"bid_base,omitempty"`
}

// BestPrice is the winning ask or bid across providers for one size.
type BestPrice struct {
	Provider   string `json:"provider"`
	AmountBase int64  `json:"amount_base"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}

// UnifiedRow is one comparable row per canonical size.
type UnifiedRow struct {
	CanonicalSize *float64   `json:"canonical_size,omitempty"`
	DisplaySize   string     `json:"display_size"`
	Quotes        []Quote    `json:"quotes"`
	BestAsk       *BestPrice `json:"best_ask,omitempty"`
	BestBid       *BestPrice `json:"best_bid,omitempty"`
}

// MarketView is the full unified market picture for one style.
type MarketView struct {
	StyleID      int64        `json:"style_id"`
	BaseCurrency string       `json:"base_currency"`
	Rows         []UnifiedRow `json:"rows"`
	// Unavailable lists providers whose mapping is invalid upstream; their
	// prices are deliberately absent rather than stale.
	Unavailable []string  `json:"unavailable,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Unifier merges per-provider latest rows into comparable per-size rows.
type Unifier struct {
	store        UnifierStore
	cache        ViewCache
	priority     []string
	rates        map[string]float64
	baseCurrency string
	cacheTTL     time.Duration
	logger       *zap.Logger
}

// NewUnifier creates a unifier. Ties for best ask/bid at equal price are
// broken by the given provider priority order, first entry winning.
func NewUnifier(store UnifierStore, cache ViewCache, priority []string, rates map[string]float64, baseCurrency string, cacheTTL time.Duration) *Unifier {
	return &Unifier{
		store:        store,
		cache:        cache,
		priority:     priority,
		rates:        rates,
		baseCurrency: baseCurrency,
		cacheTTL:     cacheTTL,
		logger:       util.GetLogger(),
	}
}

// MarketView builds (or serves from cache) the unified view for a style.
func (u *Unifier) MarketView(ctx context.Context, styleID int64) (*MarketView, error) {
	ctx, span := util.StartSpan(ctx, "Unifier.MarketView")
	defer span.End()

	cacheKey := fmt.Sprintf("market:view:%d", styleID)
	if u.cache != nil {
		if payload, err := u.cache.Get(ctx, cacheKey); err == nil && payload != nil {
			var view MarketView
			if err := json.Unmarshal(payload, &view); err == nil {
				return &view, nil
			}
		}
	}

	start := time.Now()
	defer func() {
		util.UnifyLatency.Observe(time.Since(start).Seconds())
	}()

	latest, err := u.store.LatestForStyle(ctx, styleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest market rows: %w", err)
	}

	mappings, err := u.store.MappingsForStyle(ctx, styleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}

	var unavailable []string
	for _, m := range mappings {
		if m.Status == models.MappingStatusInvalid {
			unavailable = append(unavailable, m.Provider)
		}
	}

	view := &MarketView{
		StyleID:      styleID,
		BaseCurrency: u.baseCurrency,
		Rows:         u.Unify(latest),
		Unavailable:  unavailable,
		GeneratedAt:  time.Now().UTC(),
	}

	if u.cache != nil {
		if payload, err := json.Marshal(view); err == nil {
			if err := u.cache.Set(ctx, cacheKey, payload, u.cacheTTL); err != nil {
				u.logger.Warn("Failed to cache market view", zap.Int64("style_id", styleID), zap.Error(err))
			}
		}
	}
	return view, nil
}

// Unify merges latest rows into one row per canonical size. Rows without a
// canonical size match by display-size string equality; rows that match
// neither way stay as provider-exclusive rows rather than being dropped.
func (u *Unifier) Unify(latest []models.MarketLatest) []UnifiedRow {
	byCanonical := make(map[string]*UnifiedRow)
	byDisplay := make(map[string]*UnifiedRow)
	var rows []*UnifiedRow

	addTo := func(row *UnifiedRow, r models.MarketLatest) {
		row.Quotes = append(row.Quotes, u.quote(r))
	}

	newRow := func(r models.MarketLatest) *UnifiedRow {
		row := &UnifiedRow{CanonicalSize: r.CanonicalSize, DisplaySize: r.DisplaySize}
		rows = append(rows, row)
		return row
	}

	// First pass: rows carrying a canonical size anchor the join.
	for _, r := range latest {
		if r.CanonicalSize == nil {
			continue
		}
		key := sizes.FormatCanonical(*r.CanonicalSize)
		row, ok := byCanonical[key]
		if !ok {
			row = newRow(r)
			byCanonical[key] = row
		}
		if _, taken := byDisplay[r.DisplaySize]; !taken && r.DisplaySize != "" {
			byDisplay[r.DisplaySize] = row
		}
		addTo(row, r)
	}

	// Second pass: label-only rows fall back to display-size equality.
	for _, r := range latest {
		if r.CanonicalSize != nil {
			continue
		}
		if row, ok := byDisplay[r.DisplaySize]; ok && r.DisplaySize != "" {
			addTo(row, r)
			continue
		}
		row := newRow(r)
		if r.DisplaySize != "" {
			byDisplay[r.DisplaySize] = row
		}
		addTo(row, r)
	}

	for _, row := range rows {
		u.rankQuotes(row)
		row.BestAsk = u.bestAsk(row.Quotes)
		row.BestBid = u.bestBid(row.Quotes)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case a.CanonicalSize != nil && b.CanonicalSize != nil:
			return *a.CanonicalSize < *b.CanonicalSize
		case a.CanonicalSize != nil:
			return true
		case b.CanonicalSize != nil:
			return false
		default:
			return a.DisplaySize < b.DisplaySize
		}
	})

	out := make([]UnifiedRow, len(rows))
	for i, row := range rows {
		out[i] = *row
	}
	return out
}

func (u *Unifier) quote(r models.MarketLatest) Quote {
	return Quote{
		Provider:    r.Provider,
		DisplaySize: r.DisplaySize,
		Currency:    r.Currency,
		Region:      r.Region,
		Flexible:    r.Flexible,
		Consigned:   r.Consigned,
		LowestAsk:   r.LowestAsk,
		HighestBid:  r.HighestBid,
		LastSale:    r.LastSale,
		AskBase:     u.toBase(r.LowestAsk, r.Currency),
		BidBase:     u.toBase(r.HighestBid, r.Currency),
	}
}

// toBase converts minor units into the base currency; nil when no rate is
// configured, which excludes the amount from best-price comparison.
func (u *Unifier) toBase(amount *int64, currency string) *int64 {
	if amount == nil {
		return nil
	}
	rate, ok := u.rates[currency]
	if !ok || rate <= 0 {
		return nil
	}
	converted := int64(float64(*amount)*rate + 0.5)
	return &converted
}

func (u *Unifier) rankQuotes(row *UnifiedRow) {
	sort.SliceStable(row.Quotes, func(i, j int) bool {
		return u.priorityIndex(row.Quotes[i].Provider) < u.priorityIndex(row.Quotes[j].Provider)
	})
}

// bestAsk selects the minimum base-currency ask. Equal asks resolve to
// the higher-priority provider; quotes are already priority-sorted, so a
// strict less keeps the earlier winner.
func (u *Unifier) bestAsk(quotes []Quote) *BestPrice {
	var best *BestPrice
	for _, q := range quotes {
		if q.AskBase == nil {
			continue
		}
		if best == nil || *q.AskBase < best.AmountBase {
			best = &BestPrice{
				Provider:   q.Provider,
				AmountBase: *q.AskBase,
				Amount:     *q.LowestAsk,
				Currency:   q.Currency,
			}
		}
	}
	return best
}

// bestBid selects the maximum base-currency bid, same tie-break rule.
func (u *Unifier) bestBid(quotes []Quote) *BestPrice {
	var best *BestPrice
	for _, q := range quotes {
		if q.BidBase == nil {
			continue
		}
		if best == nil || *q.BidBase > best.AmountBase {
			best = &BestPrice{
				Provider:   q.Provider,
				AmountBase: *q.BidBase,
				Amount:     *q.HighestBid,
				Currency:   q.Currency,
			}
		}
	}
	return best
}

func (u *Unifier) priorityIndex(provider string) int {
	for i, name := range u.priority {
		if name == provider {
			return i
		}
	}
	return len(u.priority)
}
