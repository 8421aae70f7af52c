package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newStripeBackend serves the PaymentIntents endpoints the adapter uses.
func newStripeBackend(t *testing.T, handler http.HandlerFunc) *StripeProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewStripeProvider(&StripeConfig{
		SecretKey:  "sk_test_123",
		APIURL:     server.URL,
		HTTPClient: server.Client(),
	}, nil)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestStripeProvider_InitiatePayment(t *testing.T) {
	t.Run("creates and confirms intent", func(t *testing.T) {
		p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/v1/payment_intents", r.URL.Path)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "150000", r.Form.Get("amount"))
			assert.Equal(t, "kes", r.Form.Get("currency"))
			assert.Equal(t, "pm_card_visa", r.Form.Get("payment_method"))
			assert.Equal(t, "true", r.Form.Get("confirm"))
			assert.Equal(t, "order-1", r.Form.Get("metadata[order_id]"))
			assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))

			writeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"requires_action","client_secret":"pi_123_secret_abc"}`)
		})

		resp := p.InitiatePayment(context.Background(), &InitiateRequest{
			OrderID:         "order-1",
			Amount:          decimal.NewFromInt(1500),
			Currency:        "KES",
			PaymentMethodID: "pm_card_visa",
		})

		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, "pi_123", resp.PaymentID)
		assert.Equal(t, "pi_123_secret_abc", resp.ClientSecret)
		assert.Equal(t, StatusPending, resp.Status)
	})

	t.Run("card declined", func(t *testing.T) {
		p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusPaymentRequired, `{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`)
		})

		resp := p.InitiatePayment(context.Background(), &InitiateRequest{
			OrderID:         "order-1",
			Amount:          decimal.NewFromInt(10),
			Currency:        "usd",
			PaymentMethodID: "pm_card_chargeDeclined",
		})

		assert.False(t, resp.Success)
		assert.Equal(t, "Your card was declined.", resp.Error)
		assert.Equal(t, StatusError, resp.Status)
	})

	t.Run("invalid amount never calls stripe", func(t *testing.T) {
		called := false
		p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})

		resp := p.InitiatePayment(context.Background(), &InitiateRequest{Amount: decimal.Zero, Currency: "usd"})
		assert.False(t, resp.Success)
		assert.False(t, called)
	})
}

func TestStripeProvider_CheckPaymentStatus(t *testing.T) {
	tests := []struct {
		raw      string
		expected Status
	}{
		{"succeeded", StatusCompleted},
		{"processing", StatusProcessing},
		{"requires_capture", StatusProcessing},
		{"requires_action", StatusPending},
		{"requires_confirmation", StatusPending},
		{"requires_payment_method", StatusPending},
		{"canceled", StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodGet, r.Method)
				require.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
				writeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"`+tt.raw+`"}`)
			})

			resp := p.CheckPaymentStatus(context.Background(), &StatusRequest{PaymentID: "pi_123"})

			require.True(t, resp.Success, resp.Error)
			assert.Equal(t, tt.expected, resp.Status)
			assert.Equal(t, tt.raw, resp.RawStatus)
		})
	}

	t.Run("missing id", func(t *testing.T) {
		p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("unexpected call")
		})
		resp := p.CheckPaymentStatus(context.Background(), &StatusRequest{Reference: "order-1"})
		assert.False(t, resp.Success)
	})

	t.Run("not found", func(t *testing.T) {
		p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, `{"error":{"type":"invalid_request_error","message":"No such payment_intent: 'pi_404'"}}`)
		})
		resp := p.CheckPaymentStatus(context.Background(), &StatusRequest{PaymentID: "pi_404"})
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "No such payment_intent")
	})
}

func TestStripeProvider_CancelPayment(t *testing.T) {
	p := newStripeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payment_intents/pi_123/cancel", r.URL.Path)
		writeJSON(w, http.StatusOK, `{"id":"pi_123","object":"payment_intent","status":"canceled"}`)
	})

	resp := p.CancelPayment(context.Background(), &StatusRequest{PaymentID: "pi_123"})
	require.True(t, resp.Success, resp.Error)
	assert.Equal(t, StatusCancelled, resp.Status)
}
