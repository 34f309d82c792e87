// Package domain defines the transaction poster contract: one backend round
// trip per logical transaction, with completion fanned out to every caller.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/storebridge/internal/backend"
	platformdomain "github.com/smallbiznis/storebridge/internal/platform/domain"
	"github.com/smallbiznis/storebridge/internal/receipt"
)

var ErrNoTransactionID = errors.New("missing_transaction_id")

// PostedTransaction records a transaction the backend has acknowledged, so a
// redelivery is finished without a duplicate post.
type PostedTransaction struct {
	TransactionID string    `gorm:"primaryKey"`
	ProductID     string    `gorm:"not null"`
	AppUserID     string    `gorm:"not null;index"`
	PostedAt      time.Time `gorm:"not null"`
}

// TableName sets the database table name.
func (PostedTransaction) TableName() string { return "posted_transactions" }

// PostRequest is one receipt-post unit of work.
type PostRequest struct {
	AppUserID     string
	Transaction   platformdomain.Transaction
	Product       *platformdomain.StoreProduct
	Context       *platformdomain.PresentationContext
	IsRestore     bool
	Source        backend.InitiationSource
	RefreshPolicy receipt.RefreshPolicy

	// SkipFinish is set when there is no platform transaction to acknowledge,
	// e.g. a restore posting the whole receipt under a surrogate identifier.
	SkipFinish bool
}

// Result is the outcome of a successful post. AttributeErrors being non-empty
// still counts as success for transaction-finishing purposes; the rejected
// attributes simply stay unsynced.
type Result struct {
	CustomerInfo    backend.CustomerInfo
	AttributeErrors []backend.AttributeError
	AlreadyPosted   bool
}

type Service interface {
	// Post produces exactly one backend round trip per transaction identifier;
	// concurrent callers for the same identifier receive the in-flight call's
	// result. On success the platform transaction is finished (unless in
	// observer mode); on error it is left un-finished for redelivery.
	Post(ctx context.Context, req PostRequest) (Result, error)
}
