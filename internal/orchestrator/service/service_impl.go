package service

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/config"
	"github.com/smallbiznis/storebridge/internal/customerinfo"
	"github.com/smallbiznis/storebridge/internal/diagnostics"
	"github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	posterdomain "github.com/smallbiznis/storebridge/internal/poster/domain"
	productsdomain "github.com/smallbiznis/storebridge/internal/products/domain"
	"github.com/smallbiznis/storebridge/internal/receipt"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type purchaseOutcome struct {
	result domain.PurchaseResult
	err    error
}

// inflight tracks one outstanding platform purchase call for a product
// identifier. Joiners subscribe to the same eventual outcome.
type inflight struct {
	appUserID string
	waiters   []chan purchaseOutcome
}

// presentationContextTTL bounds how long the context of a purchase that never
// settled (pending forever, post never retried) is retained.
const presentationContextTTL = 24 * time.Hour

type presentationEntry struct {
	ctx      *platformdomain.PresentationContext
	storedAt time.Time
}

type Service struct {
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node

	provider platformdomain.PaymentProvider
	queue    platformdomain.LegacyPaymentQueue
	poster   posterdomain.Service
	products productsdomain.Service
	cache    *customerinfo.Cache
	sink     *diagnostics.Sink

	defaultAppUserID  string
	receiptRetryCount int
	receiptRetrySleep time.Duration

	mu       sync.Mutex
	inflight map[string]*inflight
	contexts map[string]presentationEntry
}

type ServiceParam struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	GenID    *snowflake.Node
	Config   config.Config
	Provider platformdomain.PaymentProvider
	Queue    platformdomain.LegacyPaymentQueue `optional:"true"`
	Poster   posterdomain.Service
	Products productsdomain.Service
	Cache    *customerinfo.Cache
	Sink     *diagnostics.Sink `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	s := &Service{
		log:               p.Log.Named("orchestrator.service"),
		clock:             p.Clock,
		genID:             p.GenID,
		provider:          p.Provider,
		queue:             p.Queue,
		poster:            p.Poster,
		products:          p.Products,
		cache:             p.Cache,
		sink:              p.Sink,
		defaultAppUserID:  p.Config.DefaultAppUserID,
		receiptRetryCount: p.Config.ReceiptRetryCount,
		receiptRetrySleep: p.Config.ReceiptRetrySleep,
		inflight:          make(map[string]*inflight),
		contexts:          make(map[string]presentationEntry),
	}
	if p.Queue != nil {
		p.Queue.SetObserver(queueObserver{svc: s})
	}
	return s
}

// queueObserver adapts the legacy queue callback onto the orchestrator.
type queueObserver struct{ svc *Service }

func (o queueObserver) TransactionDelivered(txn platformdomain.Transaction) {
	o.svc.HandleQueueTransaction(context.Background(), txn)
}

// Purchase implements domain.Service.
func (s *Service) Purchase(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	if err := s.validate(req); err != nil {
		return domain.PurchaseResult{}, err
	}

	ch, first := s.joinOrLead(req)
	if !first {
		return s.await(ctx, ch)
	}

	out := s.performPurchase(ctx, req)
	s.resolve(req.ProductID, out)
	return out.result, out.err
}

// PurchaseViaQueue implements domain.Service.
func (s *Service) PurchaseViaQueue(ctx context.Context, req domain.PurchaseRequest) (domain.PurchaseResult, error) {
	if s.queue == nil {
		return domain.PurchaseResult{}, platformdomain.ErrStoreProblem
	}
	if err := s.validate(req); err != nil {
		return domain.PurchaseResult{}, err
	}

	ch, first := s.joinOrLead(req)
	if first {
		// Register the waiter before submitting: the queue may deliver the
		// transaction at any point after the payment is enqueued.
		ch = s.subscribe(req.ProductID)
		if err := s.queue.SubmitPayment(ctx, platformdomain.PurchaseCall{
			ProductID: req.ProductID,
			Offer:     req.Offer,
			Quantity:  req.Quantity,
			AppUserID: s.appUserID(req.AppUserID),
		}); err != nil {
			s.resolve(req.ProductID, purchaseOutcome{err: err})
		}
		// Otherwise the outcome is resolved by HandleQueueTransaction once the
		// queue delivers the transaction.
	}
	return s.await(ctx, ch)
}

// HandleQueueTransaction implements domain.Service.
func (s *Service) HandleQueueTransaction(ctx context.Context, txn platformdomain.Transaction) {
	s.mu.Lock()
	entry, matched := s.inflight[txn.ProductID]
	var appUserID string
	if matched {
		appUserID = entry.appUserID
	}
	s.mu.Unlock()

	if !matched {
		// No in-flight purchase for this product: the transaction is
		// unsolicited, but it is still posted and finished.
		if err := s.HandleUnsolicitedTransaction(ctx, txn); err != nil {
			s.log.Warn("unsolicited queue transaction post failed",
				zap.String("transaction_id", txn.ID),
				zap.Error(err))
		}
		return
	}

	out := s.settleTransaction(ctx, s.appUserID(appUserID), txn, backend.SourcePurchase)
	s.resolve(txn.ProductID, out)
}

// HandleUnsolicitedTransaction implements domain.Service.
func (s *Service) HandleUnsolicitedTransaction(ctx context.Context, txn platformdomain.Transaction) error {
	out := s.settleTransaction(ctx, s.defaultAppUserID, txn, backend.SourceQueue)
	return out.err
}

// RestorePurchases implements domain.Service.
func (s *Service) RestorePurchases(ctx context.Context, appUserID string) (backend.CustomerInfo, error) {
	user := s.appUserID(appUserID)
	txn := platformdomain.NewTransaction(s.genID, "", "", s.clock.Now(), 1, platformdomain.VerificationVerified)

	result, err := s.poster.Post(ctx, posterdomain.PostRequest{
		AppUserID:     user,
		Transaction:   txn,
		IsRestore:     true,
		Source:        backend.SourceRestore,
		RefreshPolicy: receipt.Always(),
		SkipFinish:    true,
	})
	if err != nil {
		return backend.CustomerInfo{}, err
	}
	return result.CustomerInfo, nil
}

func (s *Service) validate(req domain.PurchaseRequest) error {
	if req.ProductID == "" {
		// Fail fast: no platform call is made for a product without an
		// identifier.
		s.sink.Purchase("store_problem")
		return platformdomain.ErrStoreProblem
	}
	if req.Offer != nil {
		if _, err := base64.StdEncoding.DecodeString(req.Offer.Signature); err != nil {
			s.sink.Purchase("invalid_offer")
			return domain.ErrInvalidPromotionalOffer
		}
	}
	return nil
}

// joinOrLead returns (nil, true) for the first caller, which must perform the
// platform call, or (ch, false) for joiners awaiting the in-flight result.
func (s *Service) joinOrLead(req domain.PurchaseRequest) (chan purchaseOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.inflight[req.ProductID]; ok {
		ch := make(chan purchaseOutcome, 1)
		entry.waiters = append(entry.waiters, ch)
		return ch, false
	}

	s.inflight[req.ProductID] = &inflight{appUserID: req.AppUserID}
	now := s.clock.Now()
	s.pruneContextsLocked(now)
	if req.Context != nil {
		// Recorded before the platform call so a failed post can be retried
		// later without losing the original context.
		s.contexts[req.ProductID] = presentationEntry{ctx: req.Context, storedAt: now}
	}
	return nil, true
}

// pruneContextsLocked drops contexts of purchases that were abandoned: nothing
// settled them within the retention window. Caller holds s.mu.
func (s *Service) pruneContextsLocked(now time.Time) {
	for productID, entry := range s.contexts {
		if now.Sub(entry.storedAt) > presentationContextTTL {
			delete(s.contexts, productID)
		}
	}
}

func (s *Service) subscribe(productID string) chan purchaseOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan purchaseOutcome, 1)
	if entry, ok := s.inflight[productID]; ok {
		entry.waiters = append(entry.waiters, ch)
	} else {
		ch <- purchaseOutcome{err: platformdomain.ErrStoreProblem}
	}
	return ch
}

func (s *Service) await(ctx context.Context, ch chan purchaseOutcome) (domain.PurchaseResult, error) {
	select {
	case <-ctx.Done():
		return domain.PurchaseResult{}, ctx.Err()
	case out := <-ch:
		return out.result, out.err
	}
}

func (s *Service) resolve(productID string, out purchaseOutcome) {
	s.mu.Lock()
	entry := s.inflight[productID]
	delete(s.inflight, productID)
	s.mu.Unlock()

	if entry == nil {
		return
	}
	for _, ch := range entry.waiters {
		ch <- out
	}
}

func (s *Service) performPurchase(ctx context.Context, req domain.PurchaseRequest) purchaseOutcome {
	user := s.appUserID(req.AppUserID)

	outcome, err := s.provider.Purchase(ctx, platformdomain.PurchaseCall{
		ProductID: req.ProductID,
		Offer:     req.Offer,
		Quantity:  req.Quantity,
		AppUserID: user,
	})
	if err != nil {
		s.sink.Purchase("error")
		s.clearContext(req.ProductID)
		return purchaseOutcome{err: err}
	}

	switch {
	case outcome.UserCancelled:
		s.sink.Purchase("cancelled")
		s.clearContext(req.ProductID)
		info, _ := s.cache.Get(ctx, user)
		return purchaseOutcome{result: domain.PurchaseResult{
			CustomerInfo:  info,
			UserCancelled: true,
		}}

	case outcome.Pending:
		// Awaiting approval outside this flow; the presentation context is
		// kept so the eventual stream delivery still reports it.
		s.sink.Purchase("pending")
		return purchaseOutcome{err: platformdomain.ErrPaymentPending}

	case outcome.Transaction != nil:
		return s.settleTransaction(ctx, user, *outcome.Transaction, backend.SourcePurchase)

	default:
		s.sink.Purchase("store_problem")
		return purchaseOutcome{err: platformdomain.ErrStoreProblem}
	}
}

// settleTransaction is the single receipt-posting path for every entry point:
// modern purchases, queue deliveries and unsolicited stream updates.
func (s *Service) settleTransaction(ctx context.Context, appUserID string, txn platformdomain.Transaction, source backend.InitiationSource) purchaseOutcome {
	policy := receipt.OnlyIfEmpty()
	if source == backend.SourcePurchase {
		// The local receipt trails a fresh purchase; retry until it contains
		// the purchased product.
		policy = receipt.RetryUntilProductFound(txn.ProductID, s.receiptRetryCount, s.receiptRetrySleep)
	}

	s.mu.Lock()
	presentation := s.contexts[txn.ProductID].ctx
	s.mu.Unlock()

	result, err := s.poster.Post(ctx, posterdomain.PostRequest{
		AppUserID:     appUserID,
		Transaction:   txn,
		Product:       s.lookupProduct(ctx, txn.ProductID),
		Context:       presentation,
		Source:        source,
		RefreshPolicy: policy,
	})
	if err != nil {
		s.sink.Purchase("post_error")
		// Context retained: the transaction stays un-finished and the retried
		// post must carry the original presentation data.
		return purchaseOutcome{err: err}
	}

	s.sink.Purchase("success")
	s.clearContext(txn.ProductID)
	txnCopy := txn
	return purchaseOutcome{result: domain.PurchaseResult{
		Transaction:  &txnCopy,
		CustomerInfo: result.CustomerInfo,
	}}
}

// lookupProduct resolves price/currency metadata for the posted product from
// the storefront-scoped cache. The post proceeds without metadata when the
// lookup fails; the receipt itself is the evidence.
func (s *Service) lookupProduct(ctx context.Context, productID string) *platformdomain.StoreProduct {
	if productID == "" {
		return nil
	}
	products, err := s.products.GetProducts(ctx, []string{productID})
	if err != nil || len(products) == 0 {
		s.log.Debug("product metadata unavailable for post",
			zap.String("product_id", productID),
			zap.Error(err))
		return nil
	}
	product := products[0]
	return &product
}

func (s *Service) clearContext(productID string) {
	s.mu.Lock()
	delete(s.contexts, productID)
	s.mu.Unlock()
}

func (s *Service) appUserID(requested string) string {
	if requested != "" {
		return requested
	}
	return s.defaultAppUserID
}
