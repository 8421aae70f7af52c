package provider

import (
	"context"

	"github.com/shopspring/decimal"
)

// Status is the shared payment status vocabulary every adapter maps onto.
type Status string

const (
	StatusNone       Status = ""
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
	StatusError      Status = "error"
)

// IsTerminal reports whether the status ends a payment attempt.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRefunded, StatusError:
		return true
	default:
		return false
	}
}

// Config describes a provider to the storefront. It is built once per adapter.
type Config struct {
	Name               string   `json:"name"`
	DisplayName        string   `json:"display_name"`
	SupportedCountries []string `json:"supported_countries"`
	Supports3DS        bool     `json:"supports_3ds"`
	SupportsSavedCards bool     `json:"supports_saved_cards"`
	// AsyncConfirmation is set when completion is only observable by polling.
	AsyncConfirmation bool `json:"async_confirmation"`
	RequiresPhone     bool `json:"requires_phone"`
}

// InitiateRequest asks a provider to start a payment.
type InitiateRequest struct {
	OrderID         string            `json:"order_id"`
	Amount          decimal.Decimal   `json:"amount"`
	Currency        string            `json:"currency"`
	Description     string            `json:"description,omitempty"`
	CustomerEmail   string            `json:"customer_email,omitempty"`
	CustomerName    string            `json:"customer_name,omitempty"`
	PhoneNumber     string            `json:"phone_number,omitempty"`
	PaymentMethodID string            `json:"payment_method_id,omitempty"`
	CallbackURL     string            `json:"callback_url,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// InitiateResponse is the normalised result of starting a payment.
type InitiateResponse struct {
	Success       bool   `json:"success"`
	PaymentID     string `json:"payment_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	IframeURL     string `json:"iframe_url,omitempty"`
	RedirectURL   string `json:"redirect_url,omitempty"`
	ClientSecret  string `json:"client_secret,omitempty"`
	Status        Status `json:"status,omitempty"`
	Error         string `json:"error,omitempty"`
}

// StatusRequest identifies a payment to look up. Any one identifier may be enough,
// depending on the provider.
type StatusRequest struct {
	PaymentID     string `json:"payment_id,omitempty"`
	Reference     string `json:"reference,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Empty reports whether no identifier is set.
func (r StatusRequest) Empty() bool {
	return r.PaymentID == "" && r.Reference == "" && r.TransactionID == ""
}

// StatusResponse is the normalised result of a status lookup.
type StatusResponse struct {
	Success   bool   `json:"success"`
	Status    Status `json:"status,omitempty"`
	RawStatus string `json:"raw_status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CancelResponse is the result of cancelling a payment.
type CancelResponse struct {
	Success bool   `json:"success"`
	Status  Status `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Provider wraps one external payment backend.
//
// Implementations never return errors or panic past their boundary: every
// failure is reported as Success=false with Error set. Request validation
// happens before any outbound call.
type Provider interface {
	Name() string
	Config() Config
	InitiatePayment(ctx context.Context, req *InitiateRequest) *InitiateResponse
	CheckPaymentStatus(ctx context.Context, req *StatusRequest) *StatusResponse
}

// Canceler is implemented by providers that can cancel an unfinished payment.
type Canceler interface {
	CancelPayment(ctx context.Context, req *StatusRequest) *CancelResponse
}

func initiateFailure(msg string) *InitiateResponse {
	return &InitiateResponse{Success: false, Status: StatusError, Error: msg}
}

func statusFailure(msg string) *StatusResponse {
	return &StatusResponse{Success: false, Error: msg}
}

func cancelFailure(msg string) *CancelResponse {
	return &CancelResponse{Success: false, Error: msg}
}
