package provider

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/shared/functions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMpesa(invoker *mockInvoker) *MpesaProvider {
	return NewMpesaProvider(&MpesaConfig{CallbackURL: "https://shop.example/mpesa/callback"}, invoker, nil)
}

func TestNormalizeKenyanPhone(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		valid    bool
	}{
		{"0712345678", "254712345678", true},
		{"0112345678", "254112345678", true},
		{"712345678", "254712345678", true},
		{"+254 712 345 678", "254712345678", true},
		{"254-712-345-678", "254712345678", true},
		{"254112345678", "254112345678", true},
		{"0812345678", "", false},
		{"25471234567", "", false},
		{"12345", "", false},
		{"07123abc78", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeKenyanPhone(tt.input)
			if !tt.valid {
				assert.ErrorIs(t, err, ErrInvalidPhone)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestMpesaProvider_InitiatePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("missing phone fails without a call", func(t *testing.T) {
		invoker := &mockInvoker{}
		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID: "order-1",
			Amount:  decimal.NewFromInt(1500),
		})

		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "phone number is required")
		invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid phone fails without a call", func(t *testing.T) {
		invoker := &mockInvoker{}
		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID:     "order-1",
			Amount:      decimal.NewFromInt(1500),
			PhoneNumber: "555-0100",
		})

		assert.False(t, resp.Success)
		invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stk push accepted", func(t *testing.T) {
		invoker := &mockInvoker{}
		invoker.On("Invoke", mock.Anything, "mpesa-payment", mock.MatchedBy(func(p mpesaSTKRequest) bool {
			return p.Action == "stk_push" &&
				p.PhoneNumber == "254712345678" &&
				p.Amount == 1501 &&
				p.AccountReference == "order-1" &&
				p.CallbackURL == "https://shop.example/mpesa/callback"
		})).Return(`{"success":true,"checkout_request_id":"ws_CO_1","merchant_request_id":"29115-1"}`, nil)

		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID:     "order-1",
			Amount:      decimal.RequireFromString("1500.20"),
			PhoneNumber: "0712345678",
		})

		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, "ws_CO_1", resp.Reference)
		assert.Equal(t, "29115-1", resp.TransactionID)
		assert.Equal(t, StatusPending, resp.Status)
		invoker.AssertExpectations(t)
	})

	t.Run("function error becomes failure", func(t *testing.T) {
		invoker := &mockInvoker{}
		invoker.On("Invoke", mock.Anything, "mpesa-payment", mock.Anything).
			Return("", &functions.Error{Function: "mpesa-payment", StatusCode: 400, Message: "Invalid Access Token"})

		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID:     "order-1",
			Amount:      decimal.NewFromInt(10),
			PhoneNumber: "254712345678",
		})

		assert.False(t, resp.Success)
		assert.Equal(t, "Invalid Access Token", resp.Error)
		assert.Equal(t, StatusError, resp.Status)
	})

	t.Run("rejected push becomes failure", func(t *testing.T) {
		invoker := &mockInvoker{}
		invoker.On("Invoke", mock.Anything, "mpesa-payment", mock.Anything).
			Return(`{"success":false,"error":"Insufficient float"}`, nil)

		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID:     "order-1",
			Amount:      decimal.NewFromInt(10),
			PhoneNumber: "254712345678",
		})

		assert.False(t, resp.Success)
		assert.Equal(t, "Insufficient float", resp.Error)
	})

	t.Run("open circuit", func(t *testing.T) {
		invoker := &mockInvoker{}
		invoker.On("Invoke", mock.Anything, "mpesa-payment", mock.Anything).
			Return("", fmt.Errorf("%w: mpesa-payment", functions.ErrCircuitOpen))

		resp := newTestMpesa(invoker).InitiatePayment(ctx, &InitiateRequest{
			OrderID:     "order-1",
			Amount:      decimal.NewFromInt(10),
			PhoneNumber: "254712345678",
		})

		assert.False(t, resp.Success)
		assert.Equal(t, "payment service temporarily unavailable", resp.Error)
	})
}

func TestMpesaProvider_CheckPaymentStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("requires checkout request id", func(t *testing.T) {
		invoker := &mockInvoker{}
		resp := newTestMpesa(invoker).CheckPaymentStatus(ctx, &StatusRequest{TransactionID: "29115-1"})

		assert.False(t, resp.Success)
		invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything, mock.Anything)
	})

	tests := []struct {
		name     string
		body     string
		expected Status
	}{
		{"completed", `{"success":true,"status":"COMPLETED","result_code":"0"}`, StatusCompleted},
		{"numeric result code", `{"success":true,"result_code":0}`, StatusCompleted},
		{"user cancelled", `{"success":true,"result_code":1032}`, StatusCancelled},
		{"insufficient funds", `{"success":true,"result_code":"1"}`, StatusFailed},
		{"still pending", `{"success":true,"status":"PENDING"}`, StatusPending},
		{"no result yet", `{"success":true}`, StatusPending},
		{"invalid", `{"success":true,"status":"INVALID"}`, StatusError},
		{"failed", `{"success":true,"status":"FAILED","result_code":"2001"}`, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			invoker := &mockInvoker{}
			invoker.On("Invoke", mock.Anything, "mpesa-payment", mpesaQueryRequest{
				Action:            "query",
				CheckoutRequestID: "ws_CO_1",
			}).Return(tt.body, nil)

			resp := newTestMpesa(invoker).CheckPaymentStatus(ctx, &StatusRequest{Reference: "ws_CO_1"})

			require.True(t, resp.Success, resp.Error)
			assert.Equal(t, tt.expected, resp.Status)
			invoker.AssertExpectations(t)
		})
	}
}

func TestMpesaProvider_Config(t *testing.T) {
	p := newTestMpesa(&mockInvoker{})
	assert.Equal(t, "mpesa", p.Name())
	assert.True(t, p.Config().RequiresPhone)
	assert.True(t, p.Config().AsyncConfirmation)

	_, isCanceler := any(p).(Canceler)
	assert.False(t, isCanceler)
}
