package receipt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/smallbiznis/storebridge/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedSource struct {
	cached   []byte
	refreshe [][]byte
	refreshN int
}

func (s *scriptedSource) ReceiptData(ctx context.Context) ([]byte, error) {
	return s.cached, nil
}

func (s *scriptedSource) RefreshReceipt(ctx context.Context) ([]byte, error) {
	if s.refreshN >= len(s.refreshe) {
		return s.refreshe[len(s.refreshe)-1], nil
	}
	data := s.refreshe[s.refreshN]
	s.refreshN++
	return data, nil
}

func encode(t *testing.T, ids ...string) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"product_ids": ids})
	require.NoError(t, err)
	return raw
}

func TestRetryUntilProductFoundSucceedsOnSecondRetry(t *testing.T) {
	src := &scriptedSource{refreshe: [][]byte{
		encode(t, "other"),
		encode(t, "other"),
		encode(t, "other", "pro.monthly"),
	}}
	clk := clock.NewFakeClock(time.Now())
	f := NewFetcher(src, NewJSONParser(), clk)

	data, err := f.ReceiptData(context.Background(), RetryUntilProductFound("pro.monthly", 3, 5*time.Second))
	require.NoError(t, err)
	assert.True(t, NewJSONParser().ContainsProduct(data, "pro.monthly"))
	assert.Equal(t, 3, src.refreshN)
	assert.Len(t, clk.Sleeps(), 2)
}

func TestRetryUntilProductFoundGivesUpWithLastReceipt(t *testing.T) {
	src := &scriptedSource{refreshe: [][]byte{encode(t, "other")}}
	f := NewFetcher(src, NewJSONParser(), clock.NewFakeClock(time.Now()))

	data, err := f.ReceiptData(context.Background(), RetryUntilProductFound("pro.monthly", 2, time.Second))
	require.NoError(t, err)
	assert.False(t, NewJSONParser().ContainsProduct(data, "pro.monthly"))
}

func TestRetryUntilProductFoundEmptyReceiptIsMissing(t *testing.T) {
	src := &scriptedSource{refreshe: [][]byte{nil}}
	f := NewFetcher(src, NewJSONParser(), clock.NewFakeClock(time.Now()))

	_, err := f.ReceiptData(context.Background(), RetryUntilProductFound("pro.monthly", 1, time.Second))
	assert.ErrorIs(t, err, ErrMissingReceipt)
}

func TestOnlyIfEmptySkipsRefreshWhenReceiptHasTransactions(t *testing.T) {
	src := &scriptedSource{
		cached:   encode(t, "pro.monthly"),
		refreshe: [][]byte{encode(t, "pro.monthly", "newer")},
	}
	f := NewFetcher(src, NewJSONParser(), clock.NewFakeClock(time.Now()))

	data, err := f.ReceiptData(context.Background(), OnlyIfEmpty())
	require.NoError(t, err)
	assert.Equal(t, src.cached, data)
	assert.Equal(t, 0, src.refreshN)
}

func TestAlwaysRefreshes(t *testing.T) {
	src := &scriptedSource{
		cached:   encode(t, "stale"),
		refreshe: [][]byte{encode(t, "fresh")},
	}
	f := NewFetcher(src, NewJSONParser(), clock.NewFakeClock(time.Now()))

	data, err := f.ReceiptData(context.Background(), Always())
	require.NoError(t, err)
	assert.True(t, NewJSONParser().ContainsProduct(data, "fresh"))
}
