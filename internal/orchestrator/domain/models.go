// Package domain defines the public purchase-orchestration contract.
package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/storebridge/internal/backend"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
)

var ErrInvalidPromotionalOffer = errors.New("invalid_promotional_offer")

type PurchaseRequest struct {
	AppUserID string
	ProductID string
	Quantity  int
	Offer     *platformdomain.PromotionalOffer
	Context   *platformdomain.PresentationContext
}

// PurchaseResult carries the three-way outcome: a transaction on success, the
// best-known cached customer info on user cancellation, and the cancellation
// flag itself. Cancellation is not a failure of the system.
type PurchaseResult struct {
	Transaction   *platformdomain.Transaction
	CustomerInfo  backend.CustomerInfo
	UserCancelled bool
}

type Service interface {
	// Purchase initiates a platform purchase. For a product identifier that
	// already has a purchase in flight, the caller joins the in-flight call's
	// eventual result rather than issuing a second platform call.
	Purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)

	// PurchaseViaQueue submits to the legacy payment queue and waits for the
	// queue to deliver the transaction, correlated by product identifier.
	PurchaseViaQueue(ctx context.Context, req PurchaseRequest) (PurchaseResult, error)

	// RestorePurchases refreshes the receipt and posts it with the restore
	// flag, returning the backend's CustomerInfo.
	RestorePurchases(ctx context.Context, appUserID string) (backend.CustomerInfo, error)

	// HandleUnsolicitedTransaction is the single posting path for verified
	// transactions observed outside an app-initiated purchase (renewals,
	// out-of-app purchases, queue replays).
	HandleUnsolicitedTransaction(ctx context.Context, txn platformdomain.Transaction) error

	// HandleQueueTransaction routes a queue-delivered transaction to the
	// matching in-flight purchase, or to the unsolicited path when no
	// purchase for its product identifier is outstanding.
	HandleQueueTransaction(ctx context.Context, txn platformdomain.Transaction)
}
