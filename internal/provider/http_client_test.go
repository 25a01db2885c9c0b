package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtupay/wallet-engine/internal/models"
)

func testRequest() FulfillRequest {
	return FulfillRequest{
		Kind:           models.TypeAirtime,
		Amount:         decimal.NewFromInt(200),
		Recipient:      "08012345678",
		ServiceID:      "mtn",
		IdempotencyRef: "ref-123",
	}
}

func newTestClient(handler http.HandlerFunc, timeout time.Duration) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewHTTPClient(ClientConfig{
		BaseURL:   srv.URL,
		APIKey:    "key",
		SecretKey: "secret",
		Timeout:   timeout,
	})
	return client, srv
}

func TestFulfillSuccess(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pay", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("api-key"))

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ref-123", req["request_id"])

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "success",
			"reference": "VND-9",
			"message":   "delivered",
		})
	}, time.Second)
	defer srv.Close()

	result, err := client.Fulfill(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Status)
	assert.Equal(t, "VND-9", result.VendorRef)
}

func TestFulfillVendorReportedFailure(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "failed",
			"message": "invalid biller code",
		})
	}, time.Second)
	defer srv.Close()

	_, err := client.Fulfill(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrVendorRejected)
}

func TestFulfillVendorPending(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "processing",
			"reference": "VND-10",
		})
	}, time.Second)
	defer srv.Close()

	result, err := client.Fulfill(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomePending, result.Status)
}

func TestFulfillServerErrorIsUnavailable(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}, time.Second)
	defer srv.Close()

	_, err := client.Fulfill(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrVendorUnavailable)
}

func TestFulfillTimeoutBecomesPending(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}, 50*time.Millisecond)
	defer srv.Close()

	result, err := client.Fulfill(context.Background(), testRequest())
	require.NoError(t, err, "a timeout is not a failure: the vendor may have accepted the request")
	assert.Equal(t, OutcomePending, result.Status)
}

func TestQueryStatus(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requery", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"status":    "delivered",
			"reference": "VND-11",
		})
	}, time.Second)
	defer srv.Close()

	result, err := client.QueryStatus(context.Background(), "ref-123")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, result.Status)
}

func TestFulfillRejectsUnknownStatus(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "maybe"})
	}, time.Second)
	defer srv.Close()

	_, err := client.Fulfill(context.Background(), testRequest())
	require.ErrorIs(t, err, ErrVendorRejected)
}
