package service

import (
	"context"
	"testing"
	"time"

	"resale-sync-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUnifierStore serves scripted latest rows and mappings.
type fakeUnifierStore struct {
	latest   []models.MarketLatest
	mappings []models.ProviderMapping
	calls    int
}

func (f *fakeUnifierStore) LatestForStyle(ctx context.Context, styleID int64) ([]models.MarketLatest, error) {
	f.calls++
	return f.latest, nil
}

func (f *fakeUnifierStore) MappingsForStyle(ctx context.Context, styleID int64) ([]models.ProviderMapping, error) {
	return f.mappings, nil
}

// memViewCache is an in-process ViewCache.
type memViewCache struct {
	data map[string][]byte
}

func newMemViewCache() *memViewCache {
	return &memViewCache{data: make(map[string][]byte)}
}

func (c *memViewCache) Get(ctx context.Context, key string) ([]byte, error) {
	return c.data[key], nil
}

func (c *memViewCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.data[key] = value
	return nil
}

func size(v float64) *float64 { return &v }

func cents(v int64) *int64 { return &v }

func defaultRates() map[string]float64 {
	return map[string]float64{"USD": 1.0, "EUR": 1.08, "GBP": 1.27}
}

func newTestUnifier(store UnifierStore, cache ViewCache) *Unifier {
	return NewUnifier(store, cache, []string{"exchange", "peer", "auction"}, defaultRates(), "USD", time.Minute)
}

func TestUnifyBestAskAcrossProviders(t *testing.T) {
	u := newTestUnifier(nil, nil)

	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(9.5), DisplaySize: "US 9.5", Currency: "USD", LowestAsk: cents(14500)},
		{Provider: "peer", CanonicalSize: size(9.5), DisplaySize: "EU 43", Currency: "USD", LowestAsk: cents(13800), HighestBid: cents(12000)},
	})

	require.Len(t, rows, 1)
	require.Len(t, rows[0].Quotes, 2)

	require.NotNil(t, rows[0].BestAsk)
	assert.Equal(t, "peer", rows[0].BestAsk.Provider)
	assert.Equal(t, int64(13800), rows[0].BestAsk.AmountBase)

	require.NotNil(t, rows[0].BestBid)
	assert.Equal(t, "peer", rows[0].BestBid.Provider)
}

func TestUnifyConvertsCurrenciesBeforeComparing(t *testing.T) {
	u := newTestUnifier(nil, nil)

	// 11000 GBP pence at 1.27 is 13970 base; cheaper than the 14000 USD ask
	// despite the smaller nominal difference.
	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(10), DisplaySize: "US 10", Currency: "USD", LowestAsk: cents(14000)},
		{Provider: "auction", CanonicalSize: size(10), DisplaySize: "UK 9", Currency: "GBP", LowestAsk: cents(11000)},
	})

	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].BestAsk)
	assert.Equal(t, "auction", rows[0].BestAsk.Provider)
	assert.Equal(t, int64(13970), rows[0].BestAsk.AmountBase)
	// The original amount and currency survive for display.
	assert.Equal(t, int64(11000), rows[0].BestAsk.Amount)
	assert.Equal(t, "GBP", rows[0].BestAsk.Currency)
}

func TestUnifyTieGoesToPriorityProvider(t *testing.T) {
	latest := []models.MarketLatest{
		{Provider: "peer", CanonicalSize: size(9), DisplaySize: "EU 42.5", Currency: "USD", LowestAsk: cents(14000)},
		{Provider: "exchange", CanonicalSize: size(9), DisplaySize: "US 9", Currency: "USD", LowestAsk: cents(14000)},
	}

	u := newTestUnifier(nil, nil)
	rows := u.Unify(latest)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].BestAsk)
	assert.Equal(t, "exchange", rows[0].BestAsk.Provider)

	// Flipping the priority flips the winner.
	flipped := NewUnifier(nil, nil, []string{"peer", "exchange"}, defaultRates(), "USD", time.Minute)
	rows = flipped.Unify(latest)
	require.NotNil(t, rows[0].BestAsk)
	assert.Equal(t, "peer", rows[0].BestAsk.Provider)
}

func TestUnifyDisplaySizeFallback(t *testing.T) {
	u := newTestUnifier(nil, nil)

	// The peer row has no canonical size; it joins by display label.
	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(9.5), DisplaySize: "US 9.5", Currency: "USD", LowestAsk: cents(15000)},
		{Provider: "peer", DisplaySize: "US 9.5", Currency: "EUR", LowestAsk: cents(13000)},
	})

	require.Len(t, rows, 1)
	assert.Len(t, rows[0].Quotes, 2)
	require.NotNil(t, rows[0].BestAsk)
	assert.Equal(t, "peer", rows[0].BestAsk.Provider)
}

func TestUnifyKeepsExclusiveRows(t *testing.T) {
	u := newTestUnifier(nil, nil)

	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(8), DisplaySize: "US 8", Currency: "USD", LowestAsk: cents(12000)},
		{Provider: "peer", DisplaySize: "One Size", Currency: "EUR", LowestAsk: cents(9000)},
	})

	// No join is possible; both rows survive independently.
	require.Len(t, rows, 2)
	assert.NotNil(t, rows[0].CanonicalSize)
	assert.Equal(t, "One Size", rows[1].DisplaySize)
	assert.Len(t, rows[1].Quotes, 1)
}

func TestUnifySortsByCanonicalSize(t *testing.T) {
	u := newTestUnifier(nil, nil)

	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(11), DisplaySize: "US 11", Currency: "USD"},
		{Provider: "exchange", CanonicalSize: size(8.5), DisplaySize: "US 8.5", Currency: "USD"},
		{Provider: "peer", DisplaySize: "One Size", Currency: "EUR"},
	})

	require.Len(t, rows, 3)
	assert.Equal(t, 8.5, *rows[0].CanonicalSize)
	assert.Equal(t, 11.0, *rows[1].CanonicalSize)
	// Label-only rows sort after sized rows.
	assert.Nil(t, rows[2].CanonicalSize)
}

func TestUnifySkipsUnconvertibleCurrencies(t *testing.T) {
	u := newTestUnifier(nil, nil)

	rows := u.Unify([]models.MarketLatest{
		{Provider: "exchange", CanonicalSize: size(9), DisplaySize: "US 9", Currency: "JPY", LowestAsk: cents(2100000)},
	})

	require.Len(t, rows, 1)
	// No configured rate means no comparable price, not a bogus one.
	assert.Nil(t, rows[0].BestAsk)
	assert.Nil(t, rows[0].Quotes[0].AskBase)
}

func TestMarketViewReportsUnavailableProviders(t *testing.T) {
	store := &fakeUnifierStore{
		latest: []models.MarketLatest{
			{Provider: "exchange", CanonicalSize: size(9), DisplaySize: "US 9", Currency: "USD", LowestAsk: cents(14000)},
		},
		mappings: []models.ProviderMapping{
			{Provider: "exchange", Status: models.MappingStatusActive},
			{Provider: "auction", Status: models.MappingStatusInvalid},
		},
	}

	u := newTestUnifier(store, nil)
	view, err := u.MarketView(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"auction"}, view.Unavailable)
	assert.Equal(t, "USD", view.BaseCurrency)
	require.Len(t, view.Rows, 1)
}

func TestMarketViewServesFromCache(t *testing.T) {
	store := &fakeUnifierStore{
		latest: []models.MarketLatest{
			{Provider: "exchange", CanonicalSize: size(9), DisplaySize: "US 9", Currency: "USD", LowestAsk: cents(14000)},
		},
	}
	cache := newMemViewCache()

	u := newTestUnifier(store, cache)

	first, err := u.MarketView(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)

	second, err := u.MarketView(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls, "second read must come from cache")
	assert.Equal(t, first.Rows, second.Rows)
}
