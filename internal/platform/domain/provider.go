package domain

import (
	"context"
	"errors"
)

var (
	ErrStoreProblem           = errors.New("store_problem")
	ErrPaymentPending         = errors.New("payment_pending")
	ErrTransactionUnverified  = errors.New("transaction_unverified")
	ErrStorefrontUnavailable  = errors.New("storefront_unavailable")
	ErrProductNotFound        = errors.New("product_not_found")
	ErrTransactionStreamEnded = errors.New("transaction_stream_ended")
)

// PurchaseCall is the request submitted to the platform payment API.
type PurchaseCall struct {
	ProductID string
	Offer     *PromotionalOffer
	Quantity  int
	AppUserID string
}

// PurchaseOutcome is the terminal result of one platform purchase call.
// Exactly one of Transaction, Pending, UserCancelled is meaningful.
type PurchaseOutcome struct {
	Transaction   *Transaction
	Pending       bool
	UserCancelled bool
}

// PaymentProvider is the modern asynchronous platform payment API.
//
// TransactionUpdates delivers renewals, revocations and purchases completed
// outside the app. The same underlying purchase may also be observed through
// Purchase or the legacy queue; dedup responsibility lies with the caller.
type PaymentProvider interface {
	Purchase(ctx context.Context, call PurchaseCall) (PurchaseOutcome, error)
	TransactionUpdates() <-chan Transaction
	UnfinishedTransactions(ctx context.Context) ([]Transaction, error)
	Finish(ctx context.Context, txn Transaction) error
	Storefront(ctx context.Context) (Storefront, error)
	Products(ctx context.Context, ids []string) ([]StoreProduct, error)
	ReceiptData(ctx context.Context) ([]byte, error)
	RefreshReceipt(ctx context.Context) ([]byte, error)
}

// QueueObserver receives transactions delivered by the legacy payment queue.
// Deliveries are asynchronous and may arrive out of the order purchases were
// requested.
type QueueObserver interface {
	TransactionDelivered(txn Transaction)
}

// LegacyPaymentQueue is the queue-callback style platform payment API.
type LegacyPaymentQueue interface {
	SubmitPayment(ctx context.Context, call PurchaseCall) error
	SetObserver(obs QueueObserver)
}
