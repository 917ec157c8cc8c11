package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"
)

// httpClient is the shared transport for all adapters: JSON GETs with a
// minimum-interval limiter as a defensive floor beneath the hourly budget.
type httpClient struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	limiter *rate.Limiter
}

func newHTTPClient(baseURL, apiKey string, minInterval time.Duration) *httpClient {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &httpClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

// getJSON issues one GET and decodes the body into out. HTTP statuses are
// translated onto the shared taxonomy here so adapters never re-map them.
func (c *httpClient) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("request %s failed: %w", path, ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("GET %s: %w", path, ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("GET %s: %w", path, ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("GET %s returned %d: %w", path, resp.StatusCode, ErrTransient)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("GET %s returned unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
