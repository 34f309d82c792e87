// Package listener runs the long-lived consumer of the platform's
// asynchronous transaction-update stream, verifying each update and handing
// verified transactions to the orchestrator exactly once.
package listener

import (
	"context"
	"sync"

	orchestratordomain "github.com/smallbiznis/storebridge/internal/orchestrator/domain"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Service struct {
	log          *zap.Logger
	provider     platformdomain.PaymentProvider
	orchestrator orchestratordomain.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type ServiceParam struct {
	fx.In

	Log          *zap.Logger
	Provider     platformdomain.PaymentProvider
	Orchestrator orchestratordomain.Service
}

func NewService(p ServiceParam) *Service {
	return &Service{
		log:          p.Log.Named("listener.service"),
		provider:     p.Provider,
		orchestrator: p.Orchestrator,
	}
}

// Start begins a listen session. An active session is cancelled and awaited
// before the new one starts; two listen loops never run concurrently.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		<-s.done
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(loopCtx, done)
}

// Stop cancels the active session and waits for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Service) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	s.replayUnfinished(ctx)

	updates := s.provider.TransactionUpdates()
	for {
		select {
		case <-ctx.Done():
			return
		case txn, ok := <-updates:
			if !ok {
				s.log.Warn("transaction update stream closed")
				return
			}
			s.handle(ctx, txn)
		}
	}
}

// replayUnfinished feeds transactions the platform redelivers at startup
// through the same unsolicited path, so a post that failed last launch is
// retried.
func (s *Service) replayUnfinished(ctx context.Context) {
	txns, err := s.provider.UnfinishedTransactions(ctx)
	if err != nil {
		s.log.Warn("unfinished transaction replay failed", zap.Error(err))
		return
	}
	for _, txn := range txns {
		s.handle(ctx, txn)
	}
}

func (s *Service) handle(ctx context.Context, txn platformdomain.Transaction) {
	log := s.log.With(
		zap.String("transaction_id", txn.ID),
		zap.String("product_id", txn.ProductID),
	)

	switch txn.Verification {
	case platformdomain.VerificationUnverified:
		// Never finished or acknowledged; surfaced as its own condition.
		log.Error("unverified transaction update",
			zap.String("reason", txn.UnverifiedReason),
			zap.Error(platformdomain.ErrTransactionUnverified))

	case platformdomain.VerificationPending:
		log.Info("transaction awaiting approval, not posting")

	case platformdomain.VerificationCancelled:
		log.Info("purchase cancelled by user, nothing to post")

	case platformdomain.VerificationVerified:
		if err := s.orchestrator.HandleUnsolicitedTransaction(ctx, txn); err != nil {
			log.Warn("unsolicited transaction post failed", zap.Error(err))
		}

	default:
		log.Warn("transaction update with unknown verification state",
			zap.String("state", string(txn.Verification)))
	}
}

var Module = fx.Module("listener.service",
	fx.Provide(NewService),
	fx.Invoke(func(lc fx.Lifecycle, s *Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				s.Start(ctx)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				s.Stop()
				return nil
			},
		})
	}),
)
