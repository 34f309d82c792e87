// Package receipt fetches platform receipts under a configurable refresh
// policy and exposes the opaque parser collaborator used to decide
// retry/eligibility. It never derives entitlements from receipt contents.
package receipt

import (
	"context"
	"errors"
	"time"
)

var ErrMissingReceipt = errors.New("missing_receipt")

// Parser answers structural questions about raw receipt bytes.
type Parser interface {
	ContainsTransactions(receipt []byte) bool
	ContainsProduct(receipt []byte, productID string) bool
}

// RefreshPolicyKind selects how the local receipt is (re)fetched before a post.
type RefreshPolicyKind int

const (
	// RefreshAlways refetches fresh. Used after a purchase, since the local
	// receipt cache may be stale at the OS level.
	RefreshAlways RefreshPolicyKind = iota
	// RefreshOnlyIfEmpty refreshes only when the cached receipt has no
	// transactions. Used for background syncs to avoid throttling.
	RefreshOnlyIfEmpty
	// RefreshUntilProductFound retries refreshing until the receipt contains
	// the given product, bounded by MaxRetries and Sleep.
	RefreshUntilProductFound
	// RefreshNever uses whatever is cached.
	RefreshNever
)

type RefreshPolicy struct {
	Kind       RefreshPolicyKind
	ProductID  string
	MaxRetries int
	Sleep      time.Duration
}

func Always() RefreshPolicy      { return RefreshPolicy{Kind: RefreshAlways} }
func OnlyIfEmpty() RefreshPolicy { return RefreshPolicy{Kind: RefreshOnlyIfEmpty} }
func Never() RefreshPolicy       { return RefreshPolicy{Kind: RefreshNever} }

func RetryUntilProductFound(productID string, maxRetries int, sleep time.Duration) RefreshPolicy {
	return RefreshPolicy{
		Kind:       RefreshUntilProductFound,
		ProductID:  productID,
		MaxRetries: maxRetries,
		Sleep:      sleep,
	}
}

// Source is the subset of the platform provider the fetcher reads from.
type Source interface {
	ReceiptData(ctx context.Context) ([]byte, error)
	RefreshReceipt(ctx context.Context) ([]byte, error)
}

// Sleeper matches clock.Clock; injected so retry sleeps are testable.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type Fetcher struct {
	source Source
	parser Parser
	sleep  Sleeper
}

func NewFetcher(source Source, parser Parser, sleep Sleeper) *Fetcher {
	return &Fetcher{source: source, parser: parser, sleep: sleep}
}

// ReceiptData returns receipt bytes according to policy. An empty receipt
// after the policy is exhausted yields ErrMissingReceipt.
func (f *Fetcher) ReceiptData(ctx context.Context, policy RefreshPolicy) ([]byte, error) {
	switch policy.Kind {
	case RefreshAlways:
		return f.nonEmpty(f.source.RefreshReceipt(ctx))

	case RefreshNever:
		return f.nonEmpty(f.source.ReceiptData(ctx))

	case RefreshOnlyIfEmpty:
		data, err := f.source.ReceiptData(ctx)
		if err == nil && len(data) > 0 && f.parser.ContainsTransactions(data) {
			return data, nil
		}
		return f.nonEmpty(f.source.RefreshReceipt(ctx))

	case RefreshUntilProductFound:
		return f.retryUntilProductFound(ctx, policy)

	default:
		return f.nonEmpty(f.source.ReceiptData(ctx))
	}
}

func (f *Fetcher) retryUntilProductFound(ctx context.Context, policy RefreshPolicy) ([]byte, error) {
	var last []byte
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := f.sleep.Sleep(ctx, policy.Sleep); err != nil {
				return nil, err
			}
		}
		data, err := f.source.RefreshReceipt(ctx)
		if err != nil {
			return nil, err
		}
		if len(data) > 0 {
			last = data
			if f.parser.ContainsProduct(data, policy.ProductID) {
				return data, nil
			}
		}
	}
	// The product never showed up; return the freshest receipt we have so the
	// backend can still attempt validation, or report it missing outright.
	if len(last) == 0 {
		return nil, ErrMissingReceipt
	}
	return last, nil
}

func (f *Fetcher) nonEmpty(data []byte, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrMissingReceipt
	}
	return data, nil
}
