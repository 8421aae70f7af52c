package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-pay/gopay"
	"github.com/go-pay/gopay/alipay"
	"go.uber.org/zap"
)

const (
	alipaySuccessCode   = "10000"
	alipayTradeNotExist = "ACQ.TRADE_NOT_EXIST"
)

// AlipayConfig holds Alipay configuration.
type AlipayConfig struct {
	AppID           string // Application ID
	PrivateKey      string // RSA2 private key (PEM format)
	AlipayPublicKey string // Alipay public key for verification (PEM format)
	IsProd          bool   // Production environment flag
	NotifyURL       string
	ReturnURL       string
}

// alipayAPI is the subset of the gopay Alipay client used here.
type alipayAPI interface {
	TradePagePay(ctx context.Context, bm gopay.BodyMap) (string, error)
	TradeQuery(ctx context.Context, bm gopay.BodyMap) (*alipay.TradeQueryResponse, error)
	TradeClose(ctx context.Context, bm gopay.BodyMap) (*alipay.TradeCloseResponse, error)
}

// AlipayProvider redirects buyers to the Alipay cashier page.
type AlipayProvider struct {
	client alipayAPI
	logger *zap.Logger
	config Config
}

// NewAlipayProvider creates a new Alipay provider.
func NewAlipayProvider(cfg *AlipayConfig, logger *zap.Logger) (*AlipayProvider, error) {
	client, err := alipay.NewClient(cfg.AppID, cfg.PrivateKey, cfg.IsProd)
	if err != nil {
		return nil, fmt.Errorf("create alipay client: %w", err)
	}

	// Set public key for auto signature verification
	if cfg.AlipayPublicKey != "" {
		client.AutoVerifySign([]byte(cfg.AlipayPublicKey))
	}
	client.SetNotifyUrl(cfg.NotifyURL).SetReturnUrl(cfg.ReturnURL)

	return newAlipayProvider(client, logger), nil
}

func newAlipayProvider(client alipayAPI, logger *zap.Logger) *AlipayProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlipayProvider{
		client: client,
		logger: logger.Named("alipay"),
		config: Config{
			Name:               "alipay",
			DisplayName:        "Alipay",
			SupportedCountries: []string{"CN", "HK"},
			AsyncConfirmation:  true,
		},
	}
}

// Name returns the provider name.
func (p *AlipayProvider) Name() string {
	return "alipay"
}

// Config returns the provider descriptor.
func (p *AlipayProvider) Config() Config {
	return p.config
}

// InitiatePayment creates a page-pay order and returns the cashier URL.
func (p *AlipayProvider) InitiatePayment(ctx context.Context, req *InitiateRequest) *InitiateResponse {
	if req == nil || !req.Amount.IsPositive() {
		return initiateFailure("amount must be greater than zero")
	}
	if req.OrderID == "" {
		return initiateFailure("order id is required")
	}

	bm := make(gopay.BodyMap)
	bm.Set("out_trade_no", req.OrderID).
		Set("total_amount", req.Amount.StringFixed(2)).
		Set("subject", firstNonEmpty(req.Description, "Order "+req.OrderID)).
		Set("product_code", "FAST_INSTANT_TRADE_PAY").
		Set("timeout_express", "30m")
	if len(req.Metadata) > 0 {
		passback, _ := json.Marshal(req.Metadata)
		bm.Set("passback_params", string(passback))
	}

	payURL, err := p.client.TradePagePay(ctx, bm)
	if err != nil {
		p.logger.Warn("create page payment failed", zap.String("order_id", req.OrderID), zap.Error(err))
		return initiateFailure(err.Error())
	}

	return &InitiateResponse{
		Success:     true,
		PaymentID:   req.OrderID,
		Reference:   req.OrderID,
		RedirectURL: payURL,
		Status:      StatusPending,
	}
}

// CheckPaymentStatus queries the trade.
func (p *AlipayProvider) CheckPaymentStatus(ctx context.Context, req *StatusRequest) *StatusResponse {
	bm, ok := alipayTradeKeys(req)
	if !ok {
		return statusFailure("trade number or order id is required")
	}

	resp, err := p.client.TradeQuery(ctx, bm)
	if resp != nil && resp.Response != nil && resp.Response.SubCode == alipayTradeNotExist {
		// The trade is created only once the buyer opens the cashier.
		return &StatusResponse{Success: true, Status: StatusPending, RawStatus: alipayTradeNotExist}
	}
	if err != nil {
		p.logger.Warn("trade query failed", zap.Error(err))
		return statusFailure(err.Error())
	}
	if resp == nil || resp.Response == nil || resp.Response.Code != alipaySuccessCode {
		return statusFailure(alipayResponseError(resp))
	}

	return &StatusResponse{
		Success:   true,
		Status:    mapAlipayTradeStatus(resp.Response.TradeStatus),
		RawStatus: resp.Response.TradeStatus,
	}
}

// CancelPayment closes an unpaid trade.
func (p *AlipayProvider) CancelPayment(ctx context.Context, req *StatusRequest) *CancelResponse {
	bm, ok := alipayTradeKeys(req)
	if !ok {
		return cancelFailure("trade number or order id is required")
	}

	resp, err := p.client.TradeClose(ctx, bm)
	if err != nil {
		p.logger.Warn("trade close failed", zap.Error(err))
		return cancelFailure(err.Error())
	}
	if resp == nil || resp.Response == nil || resp.Response.Code != alipaySuccessCode {
		msg := "alipay close failed"
		if resp != nil && resp.Response != nil {
			msg = fmt.Sprintf("alipay close error: %s - %s", resp.Response.Code, resp.Response.Msg)
		}
		return cancelFailure(msg)
	}

	return &CancelResponse{Success: true, Status: StatusCancelled}
}

func alipayTradeKeys(req *StatusRequest) (gopay.BodyMap, bool) {
	if req == nil {
		return nil, false
	}
	bm := make(gopay.BodyMap)
	switch {
	case req.TransactionID != "":
		bm.Set("trade_no", req.TransactionID)
	case req.Reference != "":
		bm.Set("out_trade_no", req.Reference)
	case req.PaymentID != "":
		bm.Set("out_trade_no", req.PaymentID)
	default:
		return nil, false
	}
	return bm, true
}

func alipayResponseError(resp *alipay.TradeQueryResponse) string {
	if resp == nil || resp.Response == nil {
		return "empty alipay response"
	}
	return fmt.Sprintf("alipay query error: %s - %s", resp.Response.Code, resp.Response.Msg)
}

// mapAlipayTradeStatus maps Alipay trade status onto Status.
func mapAlipayTradeStatus(status string) Status {
	switch status {
	case "WAIT_BUYER_PAY":
		return StatusPending
	case "TRADE_CLOSED":
		return StatusCancelled
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return StatusCompleted
	default:
		return StatusPending
	}
}
