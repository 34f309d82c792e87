// Package domain defines the product/offering cache contract.
package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/storebridge/internal/backend"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
)

var (
	ErrProductsTimeout = errors.New("products_request_timed_out")
	ErrIneligible      = errors.New("intro_offer_ineligible")
)

type Service interface {
	// GetProducts returns metadata for ids, fetching only identifiers not
	// already cached for the current storefront and merging with cached
	// entries. A storefront change invalidates the whole cache first.
	GetProducts(ctx context.Context, ids []string) ([]platformdomain.StoreProduct, error)

	// GetOfferings returns the backend offering configuration, cached per
	// storefront.
	GetOfferings(ctx context.Context, appUserID string) (backend.Offerings, error)

	// CheckIntroEligibility reports per-product intro/trial eligibility.
	CheckIntroEligibility(ctx context.Context, appUserID string, ids []string) (map[string]backend.IntroEligibility, error)

	// InvalidateStorefrontCaches drops every cached entry. Coarse on purpose:
	// price and currency fields are storefront-dependent and there is no cheap
	// way to know which entries went stale.
	InvalidateStorefrontCaches()
}
