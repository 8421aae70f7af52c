package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTestPayment is returned when a sandbox payment reference is not known.
var ErrUnknownTestPayment = errors.New("unknown sandbox payment")

// TestConfig holds sandbox provider configuration.
type TestConfig struct {
	// Delay after which a pending payment reports completed. Zero means it
	// only completes through Complete.
	Delay time.Duration
	// Now overrides the clock.
	Now func() time.Time
}

type testPayment struct {
	status    Status
	createdAt time.Time
}

// TestProvider is an in-process sandbox provider. It can stand in for a real
// provider under the same name, keeping that provider's descriptor and
// request validation while never calling out.
type TestProvider struct {
	config Config
	delay  time.Duration
	now    func() time.Time

	mu       sync.Mutex
	payments map[string]*testPayment
}

// NewTestProvider creates a sandbox provider described by base. An empty
// base.Name registers it as "test".
func NewTestProvider(base Config, cfg *TestConfig) *TestProvider {
	if base.Name == "" {
		base = Config{
			Name:               "test",
			DisplayName:        "Sandbox",
			SupportedCountries: []string{"*"},
			AsyncConfirmation:  true,
		}
	}
	if cfg == nil {
		cfg = &TestConfig{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if !strings.HasSuffix(base.DisplayName, "(sandbox)") {
		base.DisplayName += " (sandbox)"
	}
	return &TestProvider{
		config:   base,
		delay:    cfg.Delay,
		now:      now,
		payments: make(map[string]*testPayment),
	}
}

// Name returns the provider name.
func (p *TestProvider) Name() string {
	return p.config.Name
}

// Config returns the provider descriptor.
func (p *TestProvider) Config() Config {
	return p.config
}

// InitiatePayment records a pending sandbox payment.
func (p *TestProvider) InitiatePayment(_ context.Context, req *InitiateRequest) *InitiateResponse {
	if req == nil || !req.Amount.IsPositive() {
		return initiateFailure("amount must be greater than zero")
	}
	if p.config.RequiresPhone {
		if strings.TrimSpace(req.PhoneNumber) == "" {
			return initiateFailure("phone number is required for " + p.config.DisplayName + " payments")
		}
		if _, err := NormalizeKenyanPhone(req.PhoneNumber); err != nil {
			return initiateFailure(err.Error())
		}
	}

	id := "test_" + uuid.New().String()
	p.mu.Lock()
	p.payments[id] = &testPayment{status: StatusPending, createdAt: p.now()}
	p.mu.Unlock()

	resp := &InitiateResponse{
		Success:       true,
		PaymentID:     id,
		Reference:     id,
		TransactionID: id,
		Status:        StatusPending,
	}
	if p.config.AsyncConfirmation && !p.config.RequiresPhone {
		resp.IframeURL = "about:blank#" + id
	}
	return resp
}

// CheckPaymentStatus reports the sandbox payment's status.
func (p *TestProvider) CheckPaymentStatus(_ context.Context, req *StatusRequest) *StatusResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	payment, ok := p.lookup(req)
	if !ok {
		return statusFailure(ErrUnknownTestPayment.Error())
	}
	if payment.status == StatusPending && p.delay > 0 && p.now().Sub(payment.createdAt) >= p.delay {
		payment.status = StatusCompleted
	}
	return &StatusResponse{Success: true, Status: payment.status, RawStatus: string(payment.status)}
}

// CancelPayment cancels a pending sandbox payment.
func (p *TestProvider) CancelPayment(_ context.Context, req *StatusRequest) *CancelResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	payment, ok := p.lookup(req)
	if !ok {
		return cancelFailure(ErrUnknownTestPayment.Error())
	}
	if payment.status.IsTerminal() {
		return cancelFailure("payment already " + string(payment.status))
	}
	payment.status = StatusCancelled
	return &CancelResponse{Success: true, Status: StatusCancelled}
}

// Complete marks a sandbox payment as completed.
func (p *TestProvider) Complete(reference string) error {
	return p.Resolve(reference, StatusCompleted)
}

// Resolve forces a sandbox payment into status.
func (p *TestProvider) Resolve(reference string, status Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	payment, ok := p.payments[reference]
	if !ok {
		return ErrUnknownTestPayment
	}
	payment.status = status
	return nil
}

func (p *TestProvider) lookup(req *StatusRequest) (*testPayment, bool) {
	if req == nil {
		return nil, false
	}
	for _, id := range []string{req.PaymentID, req.Reference, req.TransactionID} {
		if payment, ok := p.payments[id]; ok && id != "" {
			return payment, true
		}
	}
	return nil, false
}
