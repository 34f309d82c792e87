package service

import (
	"context"
	"errors"
	"sync"

	attrdomain "github.com/smallbiznis/storebridge/internal/attributes/domain"
	"github.com/smallbiznis/storebridge/internal/backend"
	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/smallbiznis/storebridge/internal/config"
	"github.com/smallbiznis/storebridge/internal/customerinfo"
	"github.com/smallbiznis/storebridge/internal/diagnostics"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/poster/domain"
	"github.com/smallbiznis/storebridge/internal/receipt"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type outcome struct {
	result domain.Result
	err    error
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock

	provider platformdomain.PaymentProvider
	fetcher  *receipt.Fetcher
	backend  backend.Client
	attrs    attrdomain.Service
	cache    *customerinfo.Cache
	sink     *diagnostics.Sink

	finishTransactions bool

	mu       sync.Mutex
	inflight map[string][]chan outcome
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Config   config.Config
	Provider platformdomain.PaymentProvider
	Fetcher  *receipt.Fetcher
	Backend  backend.Client
	Attrs    attrdomain.Service
	Cache    *customerinfo.Cache
	Sink     *diagnostics.Sink `optional:"true"`
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:                 p.DB,
		log:                p.Log.Named("poster.service"),
		clock:              p.Clock,
		provider:           p.Provider,
		fetcher:            p.Fetcher,
		backend:            p.Backend,
		attrs:              p.Attrs,
		cache:              p.Cache,
		sink:               p.Sink,
		finishTransactions: p.Config.FinishTransactions,
		inflight:           make(map[string][]chan outcome),
	}
}

// Post implements domain.Service.
func (s *Service) Post(ctx context.Context, req domain.PostRequest) (domain.Result, error) {
	txnID := req.Transaction.ID
	if txnID == "" {
		return domain.Result{}, domain.ErrNoTransactionID
	}

	s.mu.Lock()
	if waiters, ok := s.inflight[txnID]; ok {
		// A post for this transaction is in flight; await its result instead
		// of issuing a duplicate.
		ch := make(chan outcome, 1)
		s.inflight[txnID] = append(waiters, ch)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return domain.Result{}, ctx.Err()
		case out := <-ch:
			return out.result, out.err
		}
	}
	s.inflight[txnID] = nil
	s.mu.Unlock()

	out := s.post(ctx, req)

	s.mu.Lock()
	waiters := s.inflight[txnID]
	delete(s.inflight, txnID)
	s.mu.Unlock()

	for _, ch := range waiters {
		ch <- out
	}
	return out.result, out.err
}

func (s *Service) post(ctx context.Context, req domain.PostRequest) outcome {
	log := s.log.With(
		zap.String("transaction_id", req.Transaction.ID),
		zap.String("product_id", req.Transaction.ProductID),
		zap.String("source", string(req.Source)),
	)

	posted, err := s.alreadyPosted(ctx, req.Transaction.ID)
	if err != nil {
		return outcome{err: err}
	}
	if posted {
		log.Debug("skipping duplicate post for acknowledged transaction")
		// Still finish so the platform stops redelivering it.
		if err := s.finishIfNeeded(ctx, req); err != nil {
			return outcome{err: err}
		}
		info, _ := s.cache.Get(ctx, req.AppUserID)
		return outcome{result: domain.Result{CustomerInfo: info, AlreadyPosted: true}}
	}

	snapshot, err := s.attrs.UnsyncedForUser(ctx, req.AppUserID)
	if err != nil {
		return outcome{err: err}
	}

	receiptData, err := s.fetcher.ReceiptData(ctx, req.RefreshPolicy)
	if err != nil {
		// Terminal for this attempt, but the transaction stays un-finished and
		// remains replayable.
		log.Warn("receipt unavailable", zap.Error(err))
		s.sink.ReceiptPost("missing_receipt", string(req.Source))
		return outcome{err: err}
	}

	info, attrErrs, err := s.backend.PostReceipt(ctx, backend.ReceiptPostRequest{
		AppUserID:        req.AppUserID,
		ProductID:        req.Transaction.ProductID,
		TransactionID:    req.Transaction.ID,
		ReceiptData:      receiptData,
		Product:          req.Product,
		Context:          req.Context,
		Attributes:       toWire(snapshot),
		IsRestore:        req.IsRestore,
		InitiationSource: req.Source,
	})
	if err != nil {
		// Not finishing the transaction is the retry mechanism: the platform
		// will redeliver it on next launch.
		log.Warn("receipt post failed", zap.Error(err))
		s.sink.ReceiptPost("error", string(req.Source))
		return outcome{err: err}
	}

	if err := s.recordPosted(ctx, req); err != nil {
		return outcome{err: err}
	}
	if err := s.cache.Set(ctx, req.AppUserID, info); err != nil {
		log.Warn("customer info cache update failed", zap.Error(err))
	}

	rejectedKeys := make([]string, 0, len(attrErrs))
	for _, attrErr := range attrErrs {
		rejectedKeys = append(rejectedKeys, attrErr.Key)
	}
	if err := s.attrs.MarkSynced(ctx, req.AppUserID, snapshot, rejectedKeys); err != nil {
		log.Warn("marking attributes synced failed", zap.Error(err))
	}

	// The backend acknowledged the receipt; only now is the platform
	// transaction finished.
	if err := s.finishIfNeeded(ctx, req); err != nil {
		return outcome{err: err}
	}

	s.sink.ReceiptPost("success", string(req.Source))
	log.Info("receipt posted")
	return outcome{result: domain.Result{CustomerInfo: info, AttributeErrors: attrErrs}}
}

func (s *Service) alreadyPosted(ctx context.Context, txnID string) (bool, error) {
	var row domain.PostedTransaction
	err := s.db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Service) recordPosted(ctx context.Context, req domain.PostRequest) error {
	return s.db.WithContext(ctx).Save(&domain.PostedTransaction{
		TransactionID: req.Transaction.ID,
		ProductID:     req.Transaction.ProductID,
		AppUserID:     req.AppUserID,
		PostedAt:      s.clock.Now(),
	}).Error
}

func (s *Service) finishIfNeeded(ctx context.Context, req domain.PostRequest) error {
	if req.SkipFinish {
		return nil
	}
	if !s.finishTransactions {
		// Observer mode: the host app owns completing transactions.
		return nil
	}
	return s.provider.Finish(ctx, req.Transaction)
}

func toWire(attrs map[string]attrdomain.Value) map[string]backend.AttributeValue {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]backend.AttributeValue, len(attrs))
	for key, value := range attrs {
		out[key] = backend.AttributeValue{Value: value.Value, SetAt: value.SetAt}
	}
	return out
}
