package listener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/storebridge/internal/backend"
	orchestratordomain "github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type streamProvider struct {
	updates    chan platformdomain.Transaction
	unfinished []platformdomain.Transaction
}

func (p *streamProvider) Purchase(ctx context.Context, call platformdomain.PurchaseCall) (platformdomain.PurchaseOutcome, error) {
	return platformdomain.PurchaseOutcome{}, nil
}
func (p *streamProvider) TransactionUpdates() <-chan platformdomain.Transaction { return p.updates }
func (p *streamProvider) UnfinishedTransactions(ctx context.Context) ([]platformdomain.Transaction, error) {
	return p.unfinished, nil
}
func (p *streamProvider) Finish(ctx context.Context, txn platformdomain.Transaction) error {
	return nil
}
func (p *streamProvider) Storefront(ctx context.Context) (platformdomain.Storefront, error) {
	return platformdomain.Storefront{CountryCode: "USA"}, nil
}
func (p *streamProvider) Products(ctx context.Context, ids []string) ([]platformdomain.StoreProduct, error) {
	return nil, nil
}
func (p *streamProvider) ReceiptData(ctx context.Context) ([]byte, error)    { return nil, nil }
func (p *streamProvider) RefreshReceipt(ctx context.Context) ([]byte, error) { return nil, nil }

type recordingOrchestrator struct {
	mu      sync.Mutex
	handled []platformdomain.Transaction
}

func (o *recordingOrchestrator) Purchase(ctx context.Context, req orchestratordomain.PurchaseRequest) (orchestratordomain.PurchaseResult, error) {
	return orchestratordomain.PurchaseResult{}, nil
}
func (o *recordingOrchestrator) PurchaseViaQueue(ctx context.Context, req orchestratordomain.PurchaseRequest) (orchestratordomain.PurchaseResult, error) {
	return orchestratordomain.PurchaseResult{}, nil
}
func (o *recordingOrchestrator) RestorePurchases(ctx context.Context, appUserID string) (backend.CustomerInfo, error) {
	return backend.CustomerInfo{}, nil
}
func (o *recordingOrchestrator) HandleUnsolicitedTransaction(ctx context.Context, txn platformdomain.Transaction) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.handled = append(o.handled, txn)
	return nil
}
func (o *recordingOrchestrator) HandleQueueTransaction(ctx context.Context, txn platformdomain.Transaction) {
}

func (o *recordingOrchestrator) handledIDs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.handled))
	for _, txn := range o.handled {
		out = append(out, txn.ID)
	}
	return out
}

func txn(id string, state platformdomain.VerificationState) platformdomain.Transaction {
	return platformdomain.Transaction{
		ID:           id,
		ProductID:    "pro.monthly",
		PurchaseDate: time.Now().UTC(),
		Quantity:     1,
		Verification: state,
	}
}

func newFixture() (*Service, *streamProvider, *recordingOrchestrator) {
	provider := &streamProvider{updates: make(chan platformdomain.Transaction, 8)}
	orch := &recordingOrchestrator{}
	svc := NewService(ServiceParam{
		Log:          zap.NewNop(),
		Provider:     provider,
		Orchestrator: orch,
	})
	return svc, provider, orch
}

func TestVerifiedUpdateReachesOrchestratorOnce(t *testing.T) {
	svc, provider, orch := newFixture()
	svc.Start(context.Background())
	defer svc.Stop()

	provider.updates <- txn("txn-1", platformdomain.VerificationVerified)

	assert.Eventually(t, func() bool {
		return len(orch.handledIDs()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"txn-1"}, orch.handledIDs())
}

func TestNonVerifiedStatesAreNotPosted(t *testing.T) {
	svc, provider, orch := newFixture()
	svc.Start(context.Background())
	defer svc.Stop()

	unverified := txn("txn-bad", platformdomain.VerificationUnverified)
	unverified.UnverifiedReason = "invalid signature"
	provider.updates <- unverified
	provider.updates <- txn("txn-pending", platformdomain.VerificationPending)
	provider.updates <- txn("txn-cancel", platformdomain.VerificationCancelled)
	provider.updates <- txn("txn-good", platformdomain.VerificationVerified)

	assert.Eventually(t, func() bool {
		return len(orch.handledIDs()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"txn-good"}, orch.handledIDs())
}

func TestUnfinishedTransactionsReplayedAtStart(t *testing.T) {
	svc, provider, orch := newFixture()
	provider.unfinished = []platformdomain.Transaction{
		txn("txn-old", platformdomain.VerificationVerified),
	}

	svc.Start(context.Background())
	defer svc.Stop()

	assert.Eventually(t, func() bool {
		return len(orch.handledIDs()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"txn-old"}, orch.handledIDs())
}

func TestRestartReplacesActiveSession(t *testing.T) {
	svc, provider, orch := newFixture()
	svc.Start(context.Background())

	firstDone := svc.done

	svc.Start(context.Background())
	select {
	case <-firstDone:
	default:
		t.Fatal("previous listen session still running after restart")
	}

	provider.updates <- txn("txn-2", platformdomain.VerificationVerified)
	assert.Eventually(t, func() bool {
		return len(orch.handledIDs()) == 1
	}, time.Second, time.Millisecond)

	svc.Stop()
	require.Nil(t, svc.cancel)
}
