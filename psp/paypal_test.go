package psp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validHeaders() PayPalHeaders {
	return PayPalHeaders{
		TransmissionID:   "tid-1",
		TransmissionTime: "2026-08-01T00:00:00Z",
		CertURL:          "https://api.paypal.test/cert",
		AuthAlgo:         "SHA256withRSA",
		TransmissionSig:  "sig",
	}
}

func TestPayPalHeadersComplete(t *testing.T) {
	assert.True(t, validHeaders().Complete())

	h := validHeaders()
	h.TransmissionSig = ""
	assert.False(t, h.Complete())
	assert.False(t, PayPalHeaders{}.Complete())
}

// fake PayPal API serving the token and verification endpoints.
func fakePayPal(t *testing.T, status string, tokenCalls *int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		*tokenCalls++
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "cid", user)
		require.Equal(t, "csecret", pass)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "tok-123",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/v1/notifications/verify-webhook-signature", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "wh-1", body["webhook_id"])
		require.Equal(t, "tid-1", body["transmission_id"])
		require.NotNil(t, body["webhook_event"])

		json.NewEncoder(w).Encode(map[string]string{"verification_status": status})
	})
	return httptest.NewServer(mux)
}

func TestVerifyWebhookSignature(t *testing.T) {
	event := []byte(`{"id":"WH-1","event_type":"PAYMENT.CAPTURE.COMPLETED"}`)

	t.Run("success", func(t *testing.T) {
		var tokenCalls int
		srv := fakePayPal(t, "SUCCESS", &tokenCalls)
		defer srv.Close()

		c := NewPayPalClient("cid", "csecret", "wh-1", srv.URL)
		require.NoError(t, c.VerifyWebhookSignature(context.Background(), validHeaders(), event))

		// second call reuses the cached token
		require.NoError(t, c.VerifyWebhookSignature(context.Background(), validHeaders(), event))
		assert.Equal(t, 1, tokenCalls)
	})

	t.Run("failure status is an error", func(t *testing.T) {
		var tokenCalls int
		srv := fakePayPal(t, "FAILURE", &tokenCalls)
		defer srv.Close()

		c := NewPayPalClient("cid", "csecret", "wh-1", srv.URL)
		err := c.VerifyWebhookSignature(context.Background(), validHeaders(), event)
		assert.ErrorIs(t, err, ErrPayPalVerification)
	})

	t.Run("unreachable api is an error", func(t *testing.T) {
		c := NewPayPalClient("cid", "csecret", "wh-1", "http://127.0.0.1:1")
		err := c.VerifyWebhookSignature(context.Background(), validHeaders(), event)
		assert.Error(t, err)
	})
}
