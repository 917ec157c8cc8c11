// Package provider defines the normalized contract every marketplace
// adapter implements, plus the shared failure taxonomy. Consumers never see
// provider-specific wire shapes.
package provider

import (
	"context"
	"errors"
	"time"
)

// Failure taxonomy. Adapters wrap these sentinels so callers can branch
// with errors.Is regardless of which provider produced the failure.
var (
	// ErrRateLimited means the provider signalled backoff (HTTP 429). Not a
	// failure: the caller must stop calling this provider and defer work.
	ErrRateLimited = errors.New("provider rate limited")

	// ErrNotFound means the product/variant no longer exists upstream.
	// Terminal for the mapping; never retried.
	ErrNotFound = errors.New("provider resource not found")

	// ErrTransient covers network errors and 5xx responses. Retried with
	// backoff up to the configured attempt cap.
	ErrTransient = errors.New("transient provider error")

	// ErrConstraint is a write-time invariant breach. Raised, never
	// silently absorbed.
	ErrConstraint = errors.New("constraint violation")

	// ErrAlreadyDone is the idempotency short-circuit: the operation
	// already happened and the existing result is returned instead.
	ErrAlreadyDone = errors.New("already done")
)

// Candidate is a product returned by a catalog search.
type Candidate struct {
	ExternalID string
	StyleCode  string
	Brand      string
	Name       string
	Colorway   string
}

// VariantInfo is one (product, size) unit as the provider sees it.
type VariantInfo struct {
	ExternalID  string
	SizeToken   string
	DisplaySize string
}

// MarketData is one normalized market observation for a variant.
type MarketData struct {
	LowestAsk  *int64
	HighestBid *int64
	LastSale   *int64
	SaleCount  *int
	Currency   string
	Region     string
	Flexible   bool
	Consigned  bool
	ObservedAt time.Time
}

// Adapter is the per-provider contract. Implementations translate their
// wire formats into the normalized types above and map failures onto the
// shared taxonomy.
type Adapter interface {
	Name() string
	Currency() string
	Region() string

	SearchCatalog(ctx context.Context, query string) ([]Candidate, error)
	ListVariants(ctx context.Context, productID string) ([]VariantInfo, error)
	FetchMarketData(ctx context.Context, productID, variantID, currency string) (*MarketData, error)
}
