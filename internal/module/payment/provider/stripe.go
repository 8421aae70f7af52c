package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
	// APIURL overrides the API base URL (stripe-mock, tests).
	APIURL            string
	HTTPClient        *http.Client
	MaxNetworkRetries int64
}

// StripeProvider charges cards through Stripe PaymentIntents.
type StripeProvider struct {
	api    *client.API
	logger *zap.Logger
	config Config
}

// NewStripeProvider creates a new Stripe provider. It uses its own client
// rather than the package-level stripe.Key.
func NewStripeProvider(cfg *StripeConfig, logger *zap.Logger) *StripeProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("stripe")

	backendConfig := &stripe.BackendConfig{
		HTTPClient:        cfg.HTTPClient,
		LeveledLogger:     logger.Sugar(),
		MaxNetworkRetries: stripe.Int64(cfg.MaxNetworkRetries),
		EnableTelemetry:   stripe.Bool(false),
	}
	if cfg.APIURL != "" {
		backendConfig.URL = stripe.String(strings.TrimRight(cfg.APIURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig)

	return &StripeProvider{
		api: client.New(cfg.SecretKey, &stripe.Backends{
			API:     backend,
			Connect: backend,
			Uploads: backend,
		}),
		logger: logger,
		config: Config{
			Name:               "stripe",
			DisplayName:        "Credit / Debit Card",
			SupportedCountries: []string{"US", "GB", "CA", "AU", "KE", "NG", "ZA", "DE", "FR"},
			Supports3DS:        true,
			SupportsSavedCards: true,
			AsyncConfirmation:  false,
		},
	}
}

// Name returns the provider name.
func (p *StripeProvider) Name() string {
	return "stripe"
}

// Config returns the provider descriptor.
func (p *StripeProvider) Config() Config {
	return p.config
}

// InitiatePayment creates a PaymentIntent, confirming it immediately when a
// payment method is supplied.
func (p *StripeProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) *InitiateResponse {
	if req == nil || !req.Amount.IsPositive() {
		return initiateFailure("amount must be greater than zero")
	}
	if req.Currency == "" {
		return initiateFailure("currency is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(req.Amount, req.Currency)),
		Currency: stripe.String(strings.ToLower(req.Currency)),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	if req.PaymentMethodID != "" {
		params.PaymentMethod = stripe.String(req.PaymentMethodID)
		params.PaymentMethodTypes = stripe.StringSlice([]string{"card"})
		params.Confirm = stripe.Bool(true)
		if req.CallbackURL != "" {
			params.ReturnURL = stripe.String(req.CallbackURL)
		}
	} else {
		params.AutomaticPaymentMethods = &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		}
	}
	if req.OrderID != "" {
		params.AddMetadata("order_id", req.OrderID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.logger.Warn("create payment intent failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return initiateFailure(stripeErrorMessage(err))
	}

	return &InitiateResponse{
		Success:      true,
		PaymentID:    pi.ID,
		Reference:    req.OrderID,
		ClientSecret: pi.ClientSecret,
		Status:       mapStripeStatus(pi.Status),
	}
}

// CheckPaymentStatus retrieves the PaymentIntent.
func (p *StripeProvider) CheckPaymentStatus(ctx context.Context, req *StatusRequest) *StatusResponse {
	id := stripeIntentID(req)
	if id == "" {
		return statusFailure("payment intent id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		p.logger.Warn("get payment intent failed", zap.String("payment_id", id), zap.Error(err))
		return statusFailure(stripeErrorMessage(err))
	}

	return &StatusResponse{
		Success:   true,
		Status:    mapStripeStatus(pi.Status),
		RawStatus: string(pi.Status),
	}
}

// CancelPayment cancels the PaymentIntent.
func (p *StripeProvider) CancelPayment(ctx context.Context, req *StatusRequest) *CancelResponse {
	id := stripeIntentID(req)
	if id == "" {
		return cancelFailure("payment intent id is required")
	}

	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Cancel(id, params)
	if err != nil {
		p.logger.Warn("cancel payment intent failed", zap.String("payment_id", id), zap.Error(err))
		return cancelFailure(stripeErrorMessage(err))
	}

	return &CancelResponse{Success: true, Status: mapStripeStatus(pi.Status)}
}

func stripeIntentID(req *StatusRequest) string {
	if req == nil {
		return ""
	}
	if req.PaymentID != "" {
		return req.PaymentID
	}
	if strings.HasPrefix(req.TransactionID, "pi_") {
		return req.TransactionID
	}
	return ""
}

// mapStripeStatus maps PaymentIntent statuses onto Status.
func mapStripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusCompleted
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return StatusProcessing
	case stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusPending
	case stripe.PaymentIntentStatusCanceled:
		return StatusCancelled
	default:
		return StatusPending
	}
}

func stripeErrorMessage(err error) string {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return stripeErr.Msg
	}
	return err.Error()
}
