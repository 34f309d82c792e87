package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPostReceiptEncodesReceiptAndAuth(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(postReceiptResponse{
			CustomerInfo: CustomerInfo{AppUserID: "user-1", RequestDate: time.Now().UTC()},
			AttributeErrors: []AttributeError{
				{Key: "$email", Code: "invalid", Message: "malformed"},
			},
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "sk-test", zap.NewNop())
	info, attrErrs, err := client.PostReceipt(context.Background(), ReceiptPostRequest{
		AppUserID:     "user-1",
		ProductID:     "pro.monthly",
		TransactionID: "txn-1",
		ReceiptData:   []byte(`{"product_ids":["pro.monthly"]}`),
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "user-1", info.AppUserID)
	require.Len(t, attrErrs, 1)
	assert.Equal(t, "$email", attrErrs[0].Key)

	// Receipt bytes travel base64-encoded; the raw field is dropped.
	wantB64 := base64.StdEncoding.EncodeToString([]byte(`{"product_ids":["pro.monthly"]}`))
	assert.Equal(t, wantB64, gotBody["receipt_b64"])
	assert.NotContains(t, gotBody, "receipt_data")
}

func TestClientErrorsAreTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"invalid_receipt","message":"receipt malformed"}}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", zap.NewNop())
	_, _, err := client.PostReceipt(context.Background(), ReceiptPostRequest{TransactionID: "txn-1"})

	var backendErr *Error
	require.ErrorAs(t, err, &backendErr)
	assert.Equal(t, http.StatusBadRequest, backendErr.StatusCode)
	assert.Equal(t, "invalid_receipt", backendErr.Code)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestServerErrorsAreNetworkErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", zap.NewNop())
	_, err := client.GetOfferings(context.Background(), "user-1")

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewHTTPClient(srv.URL, "", zap.NewNop())
	_, err := client.GetOfferings(context.Background(), "user-1")

	assert.ErrorIs(t, err, ErrNetwork)
}

func TestContextCancellationPassesThrough(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	client := NewHTTPClient(srv.URL, "", zap.NewNop())
	_, err := client.GetOfferings(ctx, "user-1")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrNetwork)
}

func TestAppUserIDIsPathEscaped(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, "", zap.NewNop())
	_, err := client.GetOfferings(context.Background(), "$anonymous/0001")
	require.NoError(t, err)

	assert.Equal(t, "/v1/subscribers/$anonymous%2F0001/offerings", gotPath)
}
