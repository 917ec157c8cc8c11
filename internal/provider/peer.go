package provider

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// PeerAdapter talks to the peer-to-peer marketplace. It reports amounts in
// integer cents and identifies sizes only by display labels, so canonical
// matching for its rows falls back to display-size equality downstream.
type PeerAdapter struct {
	client   *httpClient
	currency string
	region   string
}

func NewPeerAdapter(baseURL, apiKey, currency, region string, minInterval time.Duration) *PeerAdapter {
	return &PeerAdapter{
		client:   newHTTPClient(baseURL, apiKey, minInterval),
		currency: currency,
		region:   region,
	}
}

func (a *PeerAdapter) Name() string     { return "peer" }
func (a *PeerAdapter) Currency() string { return a.currency }
func (a *PeerAdapter) Region() string   { return a.region }

type peerSearchResponse struct {
	Results []struct {
		ListingID int64  `json:"listing_id"`
		Sku       string `json:"sku"`
		BrandName string `json:"brand_name"`
		Model     string `json:"model"`
		ColorDesc string `json:"color_description"`
	} `json:"results"`
	Total int `json:"total"`
}

func (a *PeerAdapter) SearchCatalog(ctx context.Context, query string) ([]Candidate, error) {
	var resp peerSearchResponse
	q := url.Values{"q": {query}, "per_page": {"10"}}
	if err := a.client.getJSON(ctx, "/api/v1/listings/search", q, &resp); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		candidates = append(candidates, Candidate{
			ExternalID: strconv.FormatInt(r.ListingID, 10),
			StyleCode:  r.Sku,
			Brand:      r.BrandName,
			Name:       r.Model,
			Colorway:   r.ColorDesc,
		})
	}
	return candidates, nil
}

type peerVariantsResponse struct {
	Sizes []struct {
		SizeID    int64  `json:"size_id"`
		SizeLabel string `json:"size_label"`
	} `json:"sizes"`
}

func (a *PeerAdapter) ListVariants(ctx context.Context, productID string) ([]VariantInfo, error) {
	var resp peerVariantsResponse
	if err := a.client.getJSON(ctx, "/api/v1/listings/"+productID+"/sizes", nil, &resp); err != nil {
		return nil, err
	}

	variants := make([]VariantInfo, 0, len(resp.Sizes))
	for _, s := range resp.Sizes {
		variants = append(variants, VariantInfo{
			ExternalID:  strconv.FormatInt(s.SizeID, 10),
			DisplaySize: s.SizeLabel,
		})
	}
	return variants, nil
}

type peerMarketResponse struct {
	LowestPriceCents  *int64 `json:"lowest_price_cents"`
	HighestOfferCents *int64 `json:"highest_offer_cents"`
	LastSoldCents     *int64 `json:"last_sold_cents"`
	SoldCount         *int   `json:"sold_count"`
	ConsignedOnly     bool   `json:"consigned_only"`
}

func (a *PeerAdapter) FetchMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error) {
	var resp peerMarketResponse
	q := url.Values{"currency": {currency}}
	if err := a.client.getJSON(ctx, "/api/v1/listings/"+productID+"/sizes/"+variantID+"/pricing", q, &resp); err != nil {
		return nil, err
	}

	return &MarketData{
		LowestAsk:  resp.LowestPriceCents,
		HighestBid: resp.HighestOfferCents,
		LastSale:   resp.LastSoldCents,
		SaleCount:  resp.SoldCount,
		Currency:   currency,
		Region:     a.region,
		Consigned:  resp.ConsignedOnly,
		ObservedAt: time.Now().UTC(),
	}, nil
}
