// Package simulated implements the platform payment provider contracts
// against an in-memory store, for local development and tests.
package simulated

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storebridge/internal/clock"
	domain "github.com/smallbiznis/storebridge/internal/platform/domain"
)

// Store is an in-memory PaymentProvider. Purchases succeed immediately and
// append to a JSON receipt; transaction updates can be injected by tests or
// the dev HTTP surface.
type Store struct {
	mu          sync.Mutex
	genID       *snowflake.Node
	clock       clock.Clock
	storefront  domain.Storefront
	products    map[string]map[string]domain.StoreProduct // storefront -> product id
	receipt     []string
	finished    map[string]bool
	unfinished  []domain.Transaction
	updates     chan domain.Transaction
	receiptLagN int
}

func NewStore(genID *snowflake.Node, clk clock.Clock) *Store {
	return &Store{
		genID:      genID,
		clock:      clk,
		storefront: domain.Storefront{CountryCode: "USA"},
		products:   make(map[string]map[string]domain.StoreProduct),
		finished:   make(map[string]bool),
		updates:    make(chan domain.Transaction, 16),
	}
}

// AddProduct registers product metadata under a storefront.
func (s *Store) AddProduct(storefront string, p domain.StoreProduct) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Storefront = storefront
	byID := s.products[storefront]
	if byID == nil {
		byID = make(map[string]domain.StoreProduct)
		s.products[storefront] = byID
	}
	byID[p.ID] = p
}

// SetStorefront switches the active storefront.
func (s *Store) SetStorefront(countryCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.storefront = domain.Storefront{CountryCode: countryCode}
}

// SetReceiptLag makes the next n receipt reads omit the most recent purchase,
// reproducing the platform race where the receipt trails the transaction.
func (s *Store) SetReceiptLag(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receiptLagN = n
}

// InjectUpdate pushes a transaction into the update stream.
func (s *Store) InjectUpdate(txn domain.Transaction) {
	s.updates <- txn
}

func (s *Store) Purchase(ctx context.Context, call domain.PurchaseCall) (domain.PurchaseOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.products[s.storefront.CountryCode]
	if _, ok := byID[call.ProductID]; !ok {
		return domain.PurchaseOutcome{}, domain.ErrProductNotFound
	}

	txn := domain.NewTransaction(s.genID, "", call.ProductID, s.clock.Now(), call.Quantity, domain.VerificationVerified)
	s.receipt = append(s.receipt, call.ProductID)
	return domain.PurchaseOutcome{Transaction: &txn}, nil
}

func (s *Store) TransactionUpdates() <-chan domain.Transaction {
	return s.updates
}

func (s *Store) UnfinishedTransactions(ctx context.Context) ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Transaction, len(s.unfinished))
	copy(out, s.unfinished)
	return out, nil
}

func (s *Store) Finish(ctx context.Context, txn domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished[txn.ID] = true
	kept := s.unfinished[:0]
	for _, t := range s.unfinished {
		if t.ID != txn.ID {
			kept = append(kept, t)
		}
	}
	s.unfinished = kept
	return nil
}

// Finished reports whether the transaction has been acknowledged.
func (s *Store) Finished(txnID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished[txnID]
}

func (s *Store) Storefront(ctx context.Context) (domain.Storefront, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storefront, nil
}

func (s *Store) Products(ctx context.Context, ids []string) ([]domain.StoreProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byID := s.products[s.storefront.CountryCode]
	out := make([]domain.StoreProduct, 0, len(ids))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) ReceiptData(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encodeReceipt(), nil
}

func (s *Store) RefreshReceipt(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.receiptLagN > 0 {
		s.receiptLagN--
	}
	return s.encodeReceipt(), nil
}

func (s *Store) encodeReceipt() []byte {
	visible := s.receipt
	if s.receiptLagN > 0 && len(visible) > 0 {
		visible = visible[:len(visible)-1]
	}
	raw, _ := json.Marshal(receiptPayload{ProductIDs: visible, GeneratedAt: time.Now().UTC()})
	return raw
}

type receiptPayload struct {
	ProductIDs  []string  `json:"product_ids"`
	GeneratedAt time.Time `json:"generated_at"`
}
