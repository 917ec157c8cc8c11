package provider

import (
	"context"
	"net/url"
	"time"
)

// AuctionAdapter talks to the auction marketplace. Quotes are bid-centric:
// the current top bid plus an optional buy-it-now price, both in minor
// units (pence).
type AuctionAdapter struct {
	client   *httpClient
	currency string
	region   string
}

func NewAuctionAdapter(baseURL, apiKey, currency, region string, minInterval time.Duration) *AuctionAdapter {
	return &AuctionAdapter{
		client:   newHTTPClient(baseURL, apiKey, minInterval),
		currency: currency,
		region:   region,
	}
}

func (a *AuctionAdapter) Name() string     { return "auction" }
func (a *AuctionAdapter) Currency() string { return a.currency }
func (a *AuctionAdapter) Region() string   { return a.region }

type auctionSearchResponse struct {
	Items []struct {
		ItemID      string `json:"itemId"`
		Mpn         string `json:"mpn"`
		Brand       string `json:"brand"`
		Title       string `json:"title"`
		ColourNotes string `json:"colourNotes"`
	} `json:"items"`
}

func (a *AuctionAdapter) SearchCatalog(ctx context.Context, query string) ([]Candidate, error) {
	var resp auctionSearchResponse
	q := url.Values{"keywords": {query}, "pageSize": {"10"}}
	if err := a.client.getJSON(ctx, "/buy/browse/v1/item_summary/search", q, &resp); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		candidates = append(candidates, Candidate{
			ExternalID: it.ItemID,
			StyleCode:  it.Mpn,
			Brand:      it.Brand,
			Name:       it.Title,
			Colorway:   it.ColourNotes,
		})
	}
	return candidates, nil
}

type auctionVariantsResponse struct {
	Variations []struct {
		VariationID string `json:"variationId"`
		Size        string `json:"size"`
		SizeSystem  string `json:"sizeSystem"`
	} `json:"variations"`
}

func (a *AuctionAdapter) ListVariants(ctx context.Context, productID string) ([]VariantInfo, error) {
	var resp auctionVariantsResponse
	if err := a.client.getJSON(ctx, "/buy/browse/v1/item/"+productID+"/variations", nil, &resp); err != nil {
		return nil, err
	}

	variants := make([]VariantInfo, 0, len(resp.Variations))
	for _, v := range resp.Variations {
		display := v.Size
		if v.SizeSystem != "" {
			display = v.SizeSystem + " " + v.Size
		}
		variants = append(variants, VariantInfo{
			ExternalID:  v.VariationID,
			SizeToken:   v.Size,
			DisplaySize: display,
		})
	}
	return variants, nil
}

type auctionMarketResponse struct {
	CurrentBid   *int64 `json:"currentBidValue"`
	BuyItNow     *int64 `json:"buyItNowValue"`
	LastSold     *int64 `json:"lastSoldValue"`
	BidCount     *int   `json:"bidCount"`
	CurrencyCode string `json:"currencyCode"`
}

func (a *AuctionAdapter) FetchMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error) {
	var resp auctionMarketResponse
	q := url.Values{"currency": {currency}}
	if err := a.client.getJSON(ctx, "/buy/browse/v1/item/"+productID+"/variations/"+variantID+"/bidding", q, &resp); err != nil {
		return nil, err
	}

	currencyCode := resp.CurrencyCode
	if currencyCode == "" {
		currencyCode = currency
	}

	return &MarketData{
		LowestAsk:  resp.BuyItNow,
		HighestBid: resp.CurrentBid,
		LastSale:   resp.LastSold,
		SaleCount:  resp.BidCount,
		Currency:   currencyCode,
		Region:     a.region,
		ObservedAt: time.Now().UTC(),
	}, nil
}
