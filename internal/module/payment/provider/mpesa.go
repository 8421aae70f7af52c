package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/storefront/server/internal/shared/functions"
	"go.uber.org/zap"
)

// ErrInvalidPhone is returned for phone numbers that are not Kenyan mobile numbers.
var ErrInvalidPhone = errors.New("phone number must be a Safaricom number like 0712345678 or 254712345678")

// MpesaConfig holds M-Pesa configuration.
type MpesaConfig struct {
	FunctionName string
	CallbackURL  string
}

// MpesaProvider sends STK push requests through the hosted mpesa function.
type MpesaProvider struct {
	functions    functions.Invoker
	functionName string
	callbackURL  string
	logger       *zap.Logger
	config       Config
}

// NewMpesaProvider creates a new M-Pesa provider.
func NewMpesaProvider(cfg *MpesaConfig, invoker functions.Invoker, logger *zap.Logger) *MpesaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := cfg.FunctionName
	if name == "" {
		name = "mpesa-payment"
	}
	return &MpesaProvider{
		functions:    invoker,
		functionName: name,
		callbackURL:  cfg.CallbackURL,
		logger:       logger.Named("mpesa"),
		config: Config{
			Name:               "mpesa",
			DisplayName:        "M-Pesa",
			SupportedCountries: []string{"KE"},
			AsyncConfirmation:  true,
			RequiresPhone:      true,
		},
	}
}

// Name returns the provider name.
func (p *MpesaProvider) Name() string {
	return "mpesa"
}

// Config returns the provider descriptor.
func (p *MpesaProvider) Config() Config {
	return p.config
}

type mpesaSTKRequest struct {
	Action           string `json:"action"`
	PhoneNumber      string `json:"phone_number"`
	Amount           int64  `json:"amount"`
	OrderID          string `json:"order_id"`
	AccountReference string `json:"account_reference"`
	Description      string `json:"description"`
	CallbackURL      string `json:"callback_url,omitempty"`
}

type mpesaSTKResponse struct {
	Success             bool   `json:"success"`
	CheckoutRequestID   string `json:"checkout_request_id"`
	MerchantRequestID   string `json:"merchant_request_id"`
	ResponseDescription string `json:"response_description"`
	CustomerMessage     string `json:"customer_message"`
	Error               string `json:"error"`
}

type mpesaQueryRequest struct {
	Action            string `json:"action"`
	CheckoutRequestID string `json:"checkout_request_id"`
}

type mpesaQueryResponse struct {
	Success            bool       `json:"success"`
	Status             string     `json:"status"`
	ResultCode         flexString `json:"result_code"`
	ResultDesc         string     `json:"result_desc"`
	MpesaReceiptNumber string     `json:"mpesa_receipt_number"`
	Error              string     `json:"error"`
}

// InitiatePayment sends an STK push to the customer's phone.
func (p *MpesaProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) *InitiateResponse {
	if req == nil || strings.TrimSpace(req.PhoneNumber) == "" {
		return initiateFailure("phone number is required for M-Pesa payments")
	}
	phone, err := NormalizeKenyanPhone(req.PhoneNumber)
	if err != nil {
		return initiateFailure(err.Error())
	}
	if !req.Amount.IsPositive() {
		return initiateFailure("amount must be greater than zero")
	}

	callback := req.CallbackURL
	if callback == "" {
		callback = p.callbackURL
	}
	description := req.Description
	if description == "" {
		description = "Order " + req.OrderID
	}

	var resp mpesaSTKResponse
	err = p.functions.Invoke(ctx, p.functionName, mpesaSTKRequest{
		Action:           "stk_push",
		PhoneNumber:      phone,
		Amount:           WholeUnits(req.Amount),
		OrderID:          req.OrderID,
		AccountReference: req.OrderID,
		Description:      description,
		CallbackURL:      callback,
	}, &resp)
	if err != nil {
		p.logger.Warn("stk push failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return initiateFailure(functionErrorMessage(err))
	}
	if !resp.Success || resp.CheckoutRequestID == "" {
		msg := firstNonEmpty(resp.Error, resp.ResponseDescription, "M-Pesa request was not accepted")
		p.logger.Warn("stk push rejected", zap.String("order_id", req.OrderID), zap.String("error", msg))
		return initiateFailure(msg)
	}

	return &InitiateResponse{
		Success:       true,
		PaymentID:     resp.CheckoutRequestID,
		Reference:     resp.CheckoutRequestID,
		TransactionID: resp.MerchantRequestID,
		Status:        StatusPending,
	}
}

// CheckPaymentStatus queries the STK push result.
func (p *MpesaProvider) CheckPaymentStatus(ctx context.Context, req *StatusRequest) *StatusResponse {
	if req == nil {
		return statusFailure("checkout request id is required")
	}
	checkoutID := firstNonEmpty(req.Reference, req.PaymentID)
	if checkoutID == "" {
		return statusFailure("checkout request id is required")
	}

	var resp mpesaQueryResponse
	err := p.functions.Invoke(ctx, p.functionName, mpesaQueryRequest{
		Action:            "query",
		CheckoutRequestID: checkoutID,
	}, &resp)
	if err != nil {
		p.logger.Warn("stk query failed", zap.String("checkout_request_id", checkoutID), zap.Error(err))
		return statusFailure(functionErrorMessage(err))
	}
	if !resp.Success {
		return statusFailure(firstNonEmpty(resp.Error, resp.ResultDesc, "M-Pesa status query failed"))
	}

	raw := resp.Status
	if raw == "" {
		raw = string(resp.ResultCode)
	}
	return &StatusResponse{
		Success:   true,
		Status:    mapMpesaStatus(resp.Status, string(resp.ResultCode)),
		RawStatus: raw,
	}
}

// mapMpesaStatus maps the function's status, falling back to the Daraja result code.
func mapMpesaStatus(status, resultCode string) Status {
	switch strings.ToUpper(status) {
	case "COMPLETED", "SUCCESS":
		return StatusCompleted
	case "PENDING", "PROCESSING":
		return StatusPending
	case "CANCELLED":
		return StatusCancelled
	case "FAILED":
		return StatusFailed
	case "INVALID":
		return StatusError
	}

	switch resultCode {
	case "":
		return StatusPending
	case "0":
		return StatusCompleted
	case "1032":
		return StatusCancelled
	default:
		return StatusFailed
	}
}

// NormalizeKenyanPhone converts local and international formats to 2547XXXXXXXX or 2541XXXXXXXX.
func NormalizeKenyanPhone(phone string) (string, error) {
	var b strings.Builder
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '+' || r == '(' || r == ')':
		default:
			return "", ErrInvalidPhone
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 10 && digits[0] == '0':
		digits = "254" + digits[1:]
	case len(digits) == 9:
		digits = "254" + digits
	}

	if len(digits) != 12 || !strings.HasPrefix(digits, "254") || (digits[3] != '7' && digits[3] != '1') {
		return "", ErrInvalidPhone
	}
	return digits, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("result code: %w", err)
	}
	*f = flexString(n.String())
	return nil
}

func functionErrorMessage(err error) string {
	var fnErr *functions.Error
	if errors.As(err, &fnErr) {
		return fnErr.Message
	}
	switch {
	case errors.Is(err, functions.ErrCircuitOpen):
		return "payment service temporarily unavailable"
	case errors.Is(err, functions.ErrNotConfigured):
		return "payment service not configured"
	}
	return err.Error()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
