package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/cache"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/config"
	"github.com/smallbiznis/storebridge/internal/diagnostics"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/products/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const offeringsTTL = 5 * time.Minute

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	provider platformdomain.PaymentProvider
	backend  backend.Client
	sink     *diagnostics.Sink

	requestTimeout time.Duration

	mu         sync.Mutex
	storefront string
	products   map[string]platformdomain.StoreProduct

	offerings cache.Cache[string, backend.Offerings]
}

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Provider platformdomain.PaymentProvider
	Backend  backend.Client
	Sink     *diagnostics.Sink `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		log:            p.Log.Named("products.service"),
		clock:          p.Clock,
		provider:       p.Provider,
		backend:        p.Backend,
		sink:           p.Sink,
		requestTimeout: p.Config.ProductsRequestTimeout,
		products:       make(map[string]platformdomain.StoreProduct),
		offerings:      cache.NewTTLCache[string, backend.Offerings](),
	}
}

// GetProducts implements domain.Service.
func (s *Service) GetProducts(ctx context.Context, ids []string) ([]platformdomain.StoreProduct, error) {
	storefront, err := s.provider.Storefront(ctx)
	if err != nil {
		return nil, platformdomain.ErrStorefrontUnavailable
	}
	s.invalidateIfStorefrontChanged(storefront.CountryCode)

	missing := s.missingIDs(ids)
	if len(missing) > 0 {
		start := time.Now()
		fetched, err := s.fetchProducts(ctx, missing)
		if err != nil {
			s.sink.ProductFetch(time.Since(start), outcomeLabel(err))
			return nil, err
		}
		s.sink.ProductFetch(time.Since(start), "success")

		s.mu.Lock()
		for _, p := range fetched {
			if s.storefront == storefront.CountryCode {
				s.products[p.ID] = p
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]platformdomain.StoreProduct, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) fetchProducts(ctx context.Context, ids []string) ([]platformdomain.StoreProduct, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)
	defer cancel()

	products, err := s.provider.Products(fetchCtx, ids)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Timed out, distinct from a network failure: entries already
			// fetched are still valid.
			return nil, domain.ErrProductsTimeout
		}
		return nil, err
	}
	return products, nil
}

// GetOfferings implements domain.Service.
func (s *Service) GetOfferings(ctx context.Context, appUserID string) (backend.Offerings, error) {
	storefront, err := s.provider.Storefront(ctx)
	if err != nil {
		return backend.Offerings{}, platformdomain.ErrStorefrontUnavailable
	}
	s.invalidateIfStorefrontChanged(storefront.CountryCode)

	key := appUserID + "|" + storefront.CountryCode
	if cached, ok := s.offerings.Get(key); ok {
		return cached, nil
	}

	offerings, err := s.backend.GetOfferings(ctx, appUserID)
	if err != nil {
		return backend.Offerings{}, err
	}
	s.offerings.Set(key, offerings, offeringsTTL)
	return offerings, nil
}

// CheckIntroEligibility implements domain.Service.
func (s *Service) CheckIntroEligibility(ctx context.Context, appUserID string, ids []string) (map[string]backend.IntroEligibility, error) {
	start := time.Now()
	eligibility, err := s.backend.CheckIntroEligibility(ctx, appUserID, ids)
	if err != nil {
		s.sink.EligibilityCheck(time.Since(start), "error")
		return nil, err
	}
	s.sink.EligibilityCheck(time.Since(start), "success")

	out := make(map[string]backend.IntroEligibility, len(ids))
	for _, id := range ids {
		if state, ok := eligibility[id]; ok {
			out[id] = state
		} else {
			out[id] = backend.EligibilityUnknown
		}
	}
	return out, nil
}

// InvalidateStorefrontCaches implements domain.Service.
func (s *Service) InvalidateStorefrontCaches() {
	s.mu.Lock()
	s.products = make(map[string]platformdomain.StoreProduct)
	s.storefront = ""
	s.mu.Unlock()
	s.offerings.Clear()
}

func (s *Service) invalidateIfStorefrontChanged(countryCode string) {
	s.mu.Lock()
	changed := s.storefront != "" && s.storefront != countryCode
	if changed {
		s.log.Info("storefront changed, invalidating product caches",
			zap.String("from", s.storefront),
			zap.String("to", countryCode))
		s.products = make(map[string]platformdomain.StoreProduct)
	}
	s.storefront = countryCode
	s.mu.Unlock()

	if changed {
		s.offerings.Clear()
	}
}

func (s *Service) missingIDs(ids []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var missing []string
	for _, id := range ids {
		if _, ok := s.products[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func outcomeLabel(err error) string {
	if errors.Is(err, domain.ErrProductsTimeout) {
		return "timeout"
	}
	return "error"
}
