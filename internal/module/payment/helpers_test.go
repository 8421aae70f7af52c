package payment

import (
	"context"
	"sync"

	"github.com/storefront/server/internal/module/payment/analytics"
	"github.com/storefront/server/internal/module/payment/provider"
)

// fakeProvider implements provider.Provider with scripted responses.
type fakeProvider struct {
	config provider.Config

	mu            sync.Mutex
	initiate      func(req *provider.InitiateRequest) *provider.InitiateResponse
	status        func(req *provider.StatusRequest) *provider.StatusResponse
	initiateCalls int
	statusCalls   int
	lastStatusReq provider.StatusRequest
}

func newFakeProvider(name string, async bool) *fakeProvider {
	return &fakeProvider{
		config: provider.Config{Name: name, DisplayName: name, AsyncConfirmation: async},
		initiate: func(req *provider.InitiateRequest) *provider.InitiateResponse {
			return &provider.InitiateResponse{
				Success:       true,
				PaymentID:     "pay_1",
				Reference:     "ref_1",
				TransactionID: "txn_1",
				IframeURL:     "https://pay.example.com/iframe",
				Status:        provider.StatusPending,
			}
		},
		status: func(req *provider.StatusRequest) *provider.StatusResponse {
			return &provider.StatusResponse{Success: true, Status: provider.StatusPending}
		},
	}
}

func (p *fakeProvider) Name() string            { return p.config.Name }
func (p *fakeProvider) Config() provider.Config { return p.config }

func (p *fakeProvider) InitiatePayment(_ context.Context, req *provider.InitiateRequest) *provider.InitiateResponse {
	p.mu.Lock()
	p.initiateCalls++
	fn := p.initiate
	p.mu.Unlock()
	return fn(req)
}

func (p *fakeProvider) CheckPaymentStatus(_ context.Context, req *provider.StatusRequest) *provider.StatusResponse {
	p.mu.Lock()
	p.statusCalls++
	p.lastStatusReq = *req
	fn := p.status
	p.mu.Unlock()
	return fn(req)
}

func (p *fakeProvider) setStatus(fn func(req *provider.StatusRequest) *provider.StatusResponse) {
	p.mu.Lock()
	p.status = fn
	p.mu.Unlock()
}

func (p *fakeProvider) StatusCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls
}

// fakeCanceler adds cancellation to fakeProvider.
type fakeCanceler struct {
	*fakeProvider
	cancel func(req *provider.StatusRequest) *provider.CancelResponse
}

func (p *fakeCanceler) CancelPayment(_ context.Context, req *provider.StatusRequest) *provider.CancelResponse {
	return p.cancel(req)
}

// recordedOutcome is one analytics call.
type recordedOutcome struct {
	Outcome  analytics.Outcome
	Provider string
}

// MockRecorder implements OutcomeRecorder for testing.
type MockRecorder struct {
	mu       sync.Mutex
	outcomes []recordedOutcome
	err      error
}

func (m *MockRecorder) Record(_ context.Context, outcome analytics.Outcome, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, recordedOutcome{Outcome: outcome, Provider: provider})
	return m.err
}

func (m *MockRecorder) Outcomes() []analytics.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]analytics.Outcome, 0, len(m.outcomes))
	for _, o := range m.outcomes {
		out = append(out, o.Outcome)
	}
	return out
}

// MockNotifier collects notifications.
type MockNotifier struct {
	mu            sync.Mutex
	notifications []Notification
}

func (m *MockNotifier) Notify(n Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
}

func (m *MockNotifier) Levels() []NotificationLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]NotificationLevel, 0, len(m.notifications))
	for _, n := range m.notifications {
		out = append(out, n.Level)
	}
	return out
}

func (m *MockNotifier) Last() Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.notifications) == 0 {
		return Notification{}
	}
	return m.notifications[len(m.notifications)-1]
}
