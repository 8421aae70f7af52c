package provider

import (
	"context"
	"strings"

	"github.com/storefront/server/internal/shared/functions"
	"go.uber.org/zap"
)

// PesapalConfig holds Pesapal configuration.
type PesapalConfig struct {
	FunctionName string
	CallbackURL  string
}

// PesapalProvider submits orders through the hosted pesapal function and
// hands back the hosted payment page for embedding.
type PesapalProvider struct {
	functions    functions.Invoker
	functionName string
	callbackURL  string
	logger       *zap.Logger
	config       Config
}

// NewPesapalProvider creates a new Pesapal provider.
func NewPesapalProvider(cfg *PesapalConfig, invoker functions.Invoker, logger *zap.Logger) *PesapalProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.FunctionName
	if name == "" {
		name = "pesapal-payment"
	}
	return &PesapalProvider{
		functions:    invoker,
		functionName: name,
		callbackURL:  cfg.CallbackURL,
		logger:       logger.Named("pesapal"),
		config: Config{
			Name:               "pesapal",
			DisplayName:        "Pesapal (Cards, Mobile Money)",
			SupportedCountries: []string{"KE", "UG", "TZ", "RW", "MW", "ZM", "ZW"},
			Supports3DS:        true,
			AsyncConfirmation:  true,
		},
	}
}

// Name returns the provider name.
func (p *PesapalProvider) Name() string {
	return "pesapal"
}

// Config returns the provider descriptor.
func (p *PesapalProvider) Config() Config {
	return p.config
}

type pesapalBillingAddress struct {
	EmailAddress string `json:"email_address,omitempty"`
	PhoneNumber  string `json:"phone_number,omitempty"`
	FirstName    string `json:"first_name,omitempty"`
	LastName     string `json:"last_name,omitempty"`
}

type pesapalSubmitRequest struct {
	Action         string                `json:"action"`
	OrderID        string                `json:"order_id"`
	Amount         string                `json:"amount"`
	Currency       string                `json:"currency"`
	Description    string                `json:"description"`
	CallbackURL    string                `json:"callback_url,omitempty"`
	BillingAddress pesapalBillingAddress `json:"billing_address"`
}

type pesapalSubmitResponse struct {
	Success           bool   `json:"success"`
	OrderTrackingID   string `json:"order_tracking_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
	Error             string `json:"error"`
}

type pesapalStatusRequest struct {
	Action          string `json:"action"`
	OrderTrackingID string `json:"order_tracking_id"`
}

type pesapalStatusResponse struct {
	Success                  bool   `json:"success"`
	PaymentStatusDescription string `json:"payment_status_description"`
	ConfirmationCode         string `json:"confirmation_code"`
	Error                    string `json:"error"`
}

// InitiatePayment submits the order and returns the hosted page URL.
func (p *PesapalProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) *InitiateResponse {
	if req == nil || !req.Amount.IsPositive() {
		return initiateFailure("amount must be greater than zero")
	}
	if req.OrderID == "" {
		return initiateFailure("order id is required")
	}
	if req.CustomerEmail == "" && req.PhoneNumber == "" {
		return initiateFailure("email or phone number is required for Pesapal payments")
	}

	callback := req.CallbackURL
	if callback == "" {
		callback = p.callbackURL
	}
	first, last := splitName(req.CustomerName)

	var resp pesapalSubmitResponse
	err := p.functions.Invoke(ctx, p.functionName, pesapalSubmitRequest{
		Action:      "submit_order",
		OrderID:     req.OrderID,
		Amount:      req.Amount.StringFixed(2),
		Currency:    strings.ToUpper(req.Currency),
		Description: firstNonEmpty(req.Description, "Order "+req.OrderID),
		CallbackURL: callback,
		BillingAddress: pesapalBillingAddress{
			EmailAddress: req.CustomerEmail,
			PhoneNumber:  req.PhoneNumber,
			FirstName:    first,
			LastName:     last,
		},
	}, &resp)
	if err != nil {
		p.logger.Warn("submit order failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return initiateFailure(functionErrorMessage(err))
	}
	if !resp.Success || resp.RedirectURL == "" {
		msg := firstNonEmpty(resp.Error, "Pesapal did not return a payment page")
		p.logger.Warn("submit order rejected", zap.String("order_id", req.OrderID), zap.String("error", msg))
		return initiateFailure(msg)
	}

	return &InitiateResponse{
		Success:       true,
		PaymentID:     resp.OrderTrackingID,
		Reference:     firstNonEmpty(resp.MerchantReference, req.OrderID),
		TransactionID: resp.OrderTrackingID,
		IframeURL:     resp.RedirectURL,
		RedirectURL:   resp.RedirectURL,
		Status:        StatusPending,
	}
}

// CheckPaymentStatus looks up the transaction by its order tracking id.
func (p *PesapalProvider) CheckPaymentStatus(ctx context.Context, req *StatusRequest) *StatusResponse {
	if req == nil {
		return statusFailure("order tracking id is required")
	}
	trackingID := firstNonEmpty(req.TransactionID, req.PaymentID)
	if trackingID == "" {
		return statusFailure("order tracking id is required")
	}

	var resp pesapalStatusResponse
	err := p.functions.Invoke(ctx, p.functionName, pesapalStatusRequest{
		Action:          "get_status",
		OrderTrackingID: trackingID,
	}, &resp)
	if err != nil {
		p.logger.Warn("status query failed", zap.String("order_tracking_id", trackingID), zap.Error(err))
		return statusFailure(functionErrorMessage(err))
	}
	if !resp.Success {
		return statusFailure(firstNonEmpty(resp.Error, "Pesapal status query failed"))
	}

	return &StatusResponse{
		Success:   true,
		Status:    mapPesapalStatus(resp.PaymentStatusDescription),
		RawStatus: resp.PaymentStatusDescription,
	}
}

// mapPesapalStatus maps Pesapal payment_status_description values onto Status.
func mapPesapalStatus(status string) Status {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return StatusCompleted
	case "FAILED":
		return StatusFailed
	case "INVALID":
		return StatusError
	case "REVERSED":
		return StatusRefunded
	default:
		return StatusPending
	}
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
