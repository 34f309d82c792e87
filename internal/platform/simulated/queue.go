package simulated

import (
	"context"
	"sync"

	domain "github.com/smallbiznis/storebridge/internal/platform/domain"
)

// Queue is the callback-style payment path over the same in-memory store.
// Payments settle asynchronously; the observer receives the transaction on a
// separate goroutine, as the real queue would deliver it.
type Queue struct {
	mu       sync.Mutex
	store    *Store
	observer domain.QueueObserver
}

func NewQueue(store *Store) *Queue {
	return &Queue{store: store}
}

func (q *Queue) SetObserver(obs domain.QueueObserver) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.observer = obs
}

func (q *Queue) SubmitPayment(ctx context.Context, call domain.PurchaseCall) error {
	outcome, err := q.store.Purchase(ctx, call)
	if err != nil {
		return err
	}

	q.mu.Lock()
	obs := q.observer
	q.mu.Unlock()
	if obs == nil || outcome.Transaction == nil {
		return nil
	}

	go obs.TransactionDelivered(*outcome.Transaction)
	return nil
}
