package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/config"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/products/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockProvider struct {
	mu         sync.Mutex
	storefront string
	products   map[string]map[string]platformdomain.StoreProduct
	fetchedIDs [][]string
	fetchErr   error
}

func (m *mockProvider) Purchase(ctx context.Context, call platformdomain.PurchaseCall) (platformdomain.PurchaseOutcome, error) {
	return platformdomain.PurchaseOutcome{}, nil
}
func (m *mockProvider) TransactionUpdates() <-chan platformdomain.Transaction { return nil }
func (m *mockProvider) UnfinishedTransactions(ctx context.Context) ([]platformdomain.Transaction, error) {
	return nil, nil
}
func (m *mockProvider) Finish(ctx context.Context, txn platformdomain.Transaction) error { return nil }
func (m *mockProvider) Storefront(ctx context.Context) (platformdomain.Storefront, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return platformdomain.Storefront{CountryCode: m.storefront}, nil
}
func (m *mockProvider) Products(ctx context.Context, ids []string) ([]platformdomain.StoreProduct, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	m.fetchedIDs = append(m.fetchedIDs, ids)
	byID := m.products[m.storefront]
	var out []platformdomain.StoreProduct
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (m *mockProvider) ReceiptData(ctx context.Context) ([]byte, error)    { return nil, nil }
func (m *mockProvider) RefreshReceipt(ctx context.Context) ([]byte, error) { return nil, nil }

type mockBackend struct {
	offeringCalls int
}

func (m *mockBackend) PostReceipt(ctx context.Context, req backend.ReceiptPostRequest) (backend.CustomerInfo, []backend.AttributeError, error) {
	return backend.CustomerInfo{}, nil, nil
}
func (m *mockBackend) PostSubscriberAttributes(ctx context.Context, appUserID string, attrs map[string]backend.AttributeValue) ([]backend.AttributeError, error) {
	return nil, nil
}
func (m *mockBackend) GetOfferings(ctx context.Context, appUserID string) (backend.Offerings, error) {
	m.offeringCalls++
	return backend.Offerings{Current: "default"}, nil
}
func (m *mockBackend) CheckIntroEligibility(ctx context.Context, appUserID string, productIDs []string) (map[string]backend.IntroEligibility, error) {
	return map[string]backend.IntroEligibility{"pro.monthly": backend.EligibilityIneligible}, nil
}

func product(id, currency, storefront string) platformdomain.StoreProduct {
	return platformdomain.StoreProduct{
		ID:             id,
		Title:          id,
		PriceMinorUnit: 999,
		CurrencyCode:   currency,
		Storefront:     storefront,
	}
}

func newFixture(t *testing.T) (*Service, *mockProvider, *mockBackend) {
	provider := &mockProvider{
		storefront: "USA",
		products: map[string]map[string]platformdomain.StoreProduct{
			"USA": {
				"pro.monthly": product("pro.monthly", "USD", "USA"),
				"pro.yearly":  product("pro.yearly", "USD", "USA"),
			},
			"ESP": {
				"pro.monthly": product("pro.monthly", "EUR", "ESP"),
			},
		},
	}
	be := &mockBackend{}
	svc := NewService(ServiceParam{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(time.Now()),
		Config:   config.Config{ProductsRequestTimeout: time.Second},
		Provider: provider,
		Backend:  be,
	}).(*Service)
	return svc, provider, be
}

func TestFetchesOnlyMissingSubset(t *testing.T) {
	svc, provider, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.GetProducts(ctx, []string{"pro.monthly"})
	require.NoError(t, err)

	got, err := svc.GetProducts(ctx, []string{"pro.monthly", "pro.yearly"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Second call fetched only the identifier that was not cached.
	require.Len(t, provider.fetchedIDs, 2)
	assert.Equal(t, []string{"pro.monthly"}, provider.fetchedIDs[0])
	assert.Equal(t, []string{"pro.yearly"}, provider.fetchedIDs[1])
}

func TestCachedHitSkipsFetch(t *testing.T) {
	svc, provider, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.GetProducts(ctx, []string{"pro.monthly"})
	require.NoError(t, err)
	_, err = svc.GetProducts(ctx, []string{"pro.monthly"})
	require.NoError(t, err)

	assert.Len(t, provider.fetchedIDs, 1)
}

func TestStorefrontChangeInvalidatesAndRefetches(t *testing.T) {
	svc, provider, _ := newFixture(t)
	ctx := context.Background()

	got, err := svc.GetProducts(ctx, []string{"pro.monthly"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "USD", got[0].CurrencyCode)

	provider.mu.Lock()
	provider.storefront = "ESP"
	provider.mu.Unlock()

	got, err = svc.GetProducts(ctx, []string{"pro.monthly"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "EUR", got[0].CurrencyCode)
}

func TestTimeoutSurfacesDistinctError(t *testing.T) {
	svc, provider, _ := newFixture(t)
	provider.fetchErr = context.DeadlineExceeded

	_, err := svc.GetProducts(context.Background(), []string{"pro.monthly"})
	assert.ErrorIs(t, err, domain.ErrProductsTimeout)
}

func TestOfferingsCachedPerStorefront(t *testing.T) {
	svc, provider, be := newFixture(t)
	ctx := context.Background()

	_, err := svc.GetOfferings(ctx, "userA")
	require.NoError(t, err)
	_, err = svc.GetOfferings(ctx, "userA")
	require.NoError(t, err)
	assert.Equal(t, 1, be.offeringCalls)

	provider.mu.Lock()
	provider.storefront = "ESP"
	provider.mu.Unlock()

	_, err = svc.GetOfferings(ctx, "userA")
	require.NoError(t, err)
	assert.Equal(t, 2, be.offeringCalls)
}

func TestIntroEligibilityFillsUnknown(t *testing.T) {
	svc, _, _ := newFixture(t)

	got, err := svc.CheckIntroEligibility(context.Background(), "userA", []string{"pro.monthly", "pro.yearly"})
	require.NoError(t, err)
	assert.Equal(t, backend.EligibilityIneligible, got["pro.monthly"])
	assert.Equal(t, backend.EligibilityUnknown, got["pro.yearly"])
}
