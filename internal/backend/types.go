// Package backend is the HTTP client for the entitlement backend. The backend
// is the source of truth: receipts are posted append-only and CustomerInfo
// snapshots come back.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/smallbiznis/storebridge/internal/platform/domain"
)

var ErrNetwork = errors.New("network_error")

// Error is a typed, final backend rejection (4xx).
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("backend_error %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Entitlement is a backend-computed grant of access derived from posted
// receipts.
type Entitlement struct {
	ProductID string     `json:"product_id"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// CustomerInfo is the backend's snapshot of a subscriber.
type CustomerInfo struct {
	AppUserID    string                 `json:"app_user_id"`
	Entitlements map[string]Entitlement `json:"entitlements"`
	RequestDate  time.Time              `json:"request_date"`
}

// AttributeValue is one subscriber-attribute write carried on a post.
type AttributeValue struct {
	Value string    `json:"value"`
	SetAt time.Time `json:"set_at"`
}

// AttributeError reports a single attribute the backend rejected. The
// enclosing post still succeeded; rejected attributes must not be marked
// synced.
type AttributeError struct {
	Key     string `json:"key"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InitiationSource records which path produced a receipt post.
type InitiationSource string

const (
	SourcePurchase InitiationSource = "purchase"
	SourceRestore  InitiationSource = "restore"
	SourceQueue    InitiationSource = "queue"
)

// ReceiptPostRequest is the unit of work sent to the backend.
type ReceiptPostRequest struct {
	AppUserID        string                      `json:"app_user_id"`
	ProductID        string                      `json:"product_id"`
	TransactionID    string                      `json:"transaction_id"`
	ReceiptData      []byte                      `json:"receipt_data"`
	Product          *domain.StoreProduct        `json:"product,omitempty"`
	Context          *domain.PresentationContext `json:"presentation_context,omitempty"`
	Attributes       map[string]AttributeValue   `json:"attributes,omitempty"`
	IsRestore        bool                        `json:"is_restore"`
	InitiationSource InitiationSource            `json:"initiation_source"`
}

// IntroEligibility is the backend's answer for one product.
type IntroEligibility string

const (
	EligibilityEligible   IntroEligibility = "ELIGIBLE"
	EligibilityIneligible IntroEligibility = "INELIGIBLE"
	EligibilityUnknown    IntroEligibility = "UNKNOWN"
)

// Offering is a backend-configured set of products to present together.
type Offering struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	ProductIDs  []string `json:"product_ids"`
	IsCurrent   bool     `json:"is_current"`
}

type Offerings struct {
	Current   string              `json:"current"`
	Offerings map[string]Offering `json:"offerings"`
}

// Client is the backend contract the engine depends on. The client never
// retries internally; an unfinished platform transaction is the retry
// mechanism.
type Client interface {
	PostReceipt(ctx context.Context, req ReceiptPostRequest) (CustomerInfo, []AttributeError, error)
	PostSubscriberAttributes(ctx context.Context, appUserID string, attrs map[string]AttributeValue) ([]AttributeError, error)
	GetOfferings(ctx context.Context, appUserID string) (Offerings, error)
	CheckIntroEligibility(ctx context.Context, appUserID string, productIDs []string) (map[string]IntroEligibility, error)
}
