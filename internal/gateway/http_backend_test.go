package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBackendApprovedCharge(t *testing.T) {
	var received chargePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		json.NewEncoder(w).Encode(chargeResult{Approved: true, TransactionID: "tx_1"})
	}))
	defer srv.Close()

	b := NewHTTPBackend("authorize", srv.URL, "sk_test", time.Second)
	outcome, err := b.Charge(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, outcome.Success)
	assert.Equal(t, "authorize", outcome.Gateway)
	assert.Equal(t, "tx_1", outcome.TransactionID)
	assert.Equal(t, "75.00", received.Amount)
	assert.True(t, received.Capture)
}

func TestHTTPBackendDecline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResult{Approved: false, DeclineReason: "card_expired"})
	}))
	defer srv.Close()

	b := NewHTTPBackend("authorize", srv.URL, "sk_test", time.Second)
	outcome, err := b.Charge(context.Background(), testRequest())
	require.NoError(t, err, "a decline is an outcome, not a transport error")

	assert.False(t, outcome.Success)
	assert.Equal(t, "card_expired", outcome.DeclineReason)
}

func TestHTTPBackendRequiresAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chargeResult{
			Approved:       true,
			RequiresAction: true,
			ActionRef:      "3ds_session_9",
		})
	}))
	defer srv.Close()

	b := NewHTTPBackend("authorize", srv.URL, "sk_test", time.Second)
	outcome, err := b.Charge(context.Background(), testRequest())
	require.NoError(t, err)

	assert.False(t, outcome.Success, "requires-action is never a success")
	assert.True(t, outcome.RequiresAction)
	assert.Equal(t, "3ds_session_9", outcome.ActionRef)
}

func TestHTTPBackendServerErrorIsTransportFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b := NewHTTPBackend("authorize", srv.URL, "sk_test", time.Second)
	_, err := b.Charge(context.Background(), testRequest())
	assert.Error(t, err)
}

func TestHTTPBackendUnreachable(t *testing.T) {
	b := NewHTTPBackend("authorize", "http://127.0.0.1:1", "sk_test", 200*time.Millisecond)
	_, err := b.Charge(context.Background(), testRequest())
	assert.Error(t, err)
}
