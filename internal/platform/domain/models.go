// Package domain contains the contracts and models for the platform store:
// products, storefronts, transactions and the payment provider interfaces.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// VerificationState reports the authenticity check outcome for a transaction
// delivered by the platform's transaction stream.
type VerificationState string

const (
	VerificationVerified   VerificationState = "VERIFIED"
	VerificationUnverified VerificationState = "UNVERIFIED"
	VerificationPending    VerificationState = "PENDING"
	VerificationCancelled  VerificationState = "CANCELLED"
)

// Transaction is one purchase event reported by the platform. Immutable once
// created; released once finish/acknowledge has been confirmed.
type Transaction struct {
	ID               string
	ProductID        string
	PurchaseDate     time.Time
	Quantity         int
	Verification     VerificationState
	UnverifiedReason string

	// SurrogateID is true when the platform omitted a transaction identifier
	// and ID was synthesized locally.
	SurrogateID bool
}

// NewTransaction builds a Transaction, synthesizing an identifier from genID
// when the platform did not assign one, so lookups never collide on "".
func NewTransaction(genID *snowflake.Node, platformID, productID string, purchaseDate time.Time, quantity int, state VerificationState) Transaction {
	txn := Transaction{
		ID:           platformID,
		ProductID:    productID,
		PurchaseDate: purchaseDate,
		Quantity:     quantity,
		Verification: state,
	}
	if txn.ID == "" {
		txn.ID = "sbx_" + genID.Generate().String()
		txn.SurrogateID = true
	}
	if txn.Quantity == 0 {
		txn.Quantity = 1
	}
	return txn
}

// Storefront is the country/region context under which the store serves
// prices and availability.
type Storefront struct {
	CountryCode string
}

// StoreProduct is platform product metadata. Price fields are only valid for
// the storefront the product was fetched under.
type StoreProduct struct {
	ID             string
	Title          string
	Description    string
	PriceMinorUnit int64
	CurrencyCode   string
	Storefront     string
}

// PromotionalOffer is a signed discount payload attached to a purchase.
type PromotionalOffer struct {
	ID        string
	Signature string
	Nonce     uuid.UUID
	Timestamp int64
	KeyID     string
}

// PresentationContext describes which offering/placement a purchase was
// initiated from. Attached before the platform call and carried through
// receipt posting so a retried post keeps the original context.
type PresentationContext struct {
	OfferingID       string    `json:"offering_id"`
	PlacementID      string    `json:"placement_id,omitempty"`
	PaywallSessionID uuid.UUID `json:"paywall_session_id,omitempty"`
	TargetingRule    string    `json:"targeting_rule,omitempty"`
}
