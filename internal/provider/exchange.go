package provider

import (
	"context"
	"net/url"
	"time"
)

// ExchangeAdapter talks to the sneaker/apparel resale exchange. Prices come
// back as float dollar amounts; the exchange also quotes a flexible
// (expedited) pricing tier alongside the standard one.
type ExchangeAdapter struct {
	client   *httpClient
	currency string
	region   string
}

func NewExchangeAdapter(baseURL, apiKey, currency, region string, minInterval time.Duration) *ExchangeAdapter {
	return &ExchangeAdapter{
		client:   newHTTPClient(baseURL, apiKey, minInterval),
		currency: currency,
		region:   region,
	}
}

func (a *ExchangeAdapter) Name() string     { return "exchange" }
func (a *ExchangeAdapter) Currency() string { return a.currency }
func (a *ExchangeAdapter) Region() string   { return a.region }

type exchangeSearchResponse struct {
	Products []struct {
		ID       string `json:"id"`
		StyleID  string `json:"styleId"`
		Brand    string `json:"brand"`
		Title    string `json:"title"`
		Colorway string `json:"colorway"`
		Category string `json:"category"`
		URLKey   string `json:"urlKey"`
	} `json:"Products"`
}

func (a *ExchangeAdapter) SearchCatalog(ctx context.Context, query string) ([]Candidate, error) {
	var resp exchangeSearchResponse
	q := url.Values{"query": {query}, "limit": {"10"}}
	if err := a.client.getJSON(ctx, "/v2/search", q, &resp); err != nil {
		return nil, err
	}

	candidates := make([]Candidate, 0, len(resp.Products))
	for _, p := range resp.Products {
		candidates = append(candidates, Candidate{
			ExternalID: p.ID,
			StyleCode:  p.StyleID,
			Brand:      p.Brand,
			Name:       p.Title,
			Colorway:   p.Colorway,
		})
	}
	return candidates, nil
}

type exchangeVariantsResponse struct {
	Variants []struct {
		ID       string `json:"id"`
		Size     string `json:"size"`
		SizeDesc string `json:"sizeDescriptor"`
	} `json:"variants"`
}

func (a *ExchangeAdapter) ListVariants(ctx context.Context, productID string) ([]VariantInfo, error) {
	var resp exchangeVariantsResponse
	if err := a.client.getJSON(ctx, "/v2/products/"+productID+"/variants", nil, &resp); err != nil {
		return nil, err
	}

	variants := make([]VariantInfo, 0, len(resp.Variants))
	for _, v := range resp.Variants {
		display := v.SizeDesc
		if display == "" {
			display = "US " + v.Size
		}
		variants = append(variants, VariantInfo{
			ExternalID:  v.ID,
			SizeToken:   v.Size,
			DisplaySize: display,
		})
	}
	return variants, nil
}

type exchangeMarketResponse struct {
	Market struct {
		LowestAsk        *float64 `json:"lowestAsk"`
		FlexLowestAsk    *float64 `json:"flexLowestAsk"`
		HighestBid       *float64 `json:"highestBid"`
		LastSale         *float64 `json:"lastSale"`
		SalesLast72Hours *int     `json:"salesLast72Hours"`
	} `json:"market"`
}

func (a *ExchangeAdapter) FetchMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error) {
	var resp exchangeMarketResponse
	q := url.Values{"currencyCode": {currency}}
	if err := a.client.getJSON(ctx, "/v2/products/"+productID+"/variants/"+variantID+"/market", q, &resp); err != nil {
		return nil, err
	}

	m := resp.Market
	ask := m.LowestAsk
	flexible := false
	// The flexible tier wins when it undercuts the standard ask.
	if m.FlexLowestAsk != nil && (ask == nil || *m.FlexLowestAsk < *ask) {
		ask = m.FlexLowestAsk
		flexible = true
	}

	return &MarketData{
		LowestAsk:  dollarsToCents(ask),
		HighestBid: dollarsToCents(m.HighestBid),
		LastSale:   dollarsToCents(m.LastSale),
		SaleCount:  m.SalesLast72Hours,
		Currency:   currency,
		Region:     a.region,
		Flexible:   flexible,
		ObservedAt: time.Now().UTC(),
	}, nil
}

func dollarsToCents(v *float64) *int64 {
	if v == nil {
		return nil
	}
	cents := int64(*v*100 + 0.5)
	return &cents
}
