package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/provider"
	"go.uber.org/zap"
)

// PaymentInput carries the customer-supplied fields of a payment attempt.
type PaymentInput struct {
	PhoneNumber     string `json:"phone_number"`
	PaymentMethodID string `json:"payment_method_id"`
	CustomerName    string `json:"customer_name"`
	CallbackURL     string `json:"callback_url"`
}

// View is the client-facing snapshot of a session.
type View struct {
	ID             string        `json:"id"`
	CartID         string        `json:"cart_id"`
	Step           Step          `json:"step"`
	PaymentValid   bool          `json:"payment_valid"`
	Submitted      bool          `json:"submitted"`
	Information    *Information  `json:"information,omitempty"`
	ShippingMethod string        `json:"shipping_method,omitempty"`
	Totals         *Totals       `json:"totals,omitempty"`
	Payment        payment.State `json:"payment"`
	Polling        bool          `json:"polling"`
	CreatedAt      time.Time     `json:"created_at"`
}

// Session is one browser checkout: a step controller, a payment gateway, at
// most one status poller and the pending notifications.
type Session struct {
	ID        string
	CartID    string
	UserID    string
	CreatedAt time.Time

	email         string
	currency      string
	sandbox       bool
	registry      *payment.ProviderRegistry
	gateway       *payment.Gateway
	poller        *payment.Poller
	controller    *Controller
	notifications *notificationBuffer
	logger        *zap.Logger

	// ctx bounds the poller and is cancelled by Teardown.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	paidAmount decimal.Decimal
	closed     bool

	lastSeen atomic.Int64
}

// Gateway exposes the session's payment state machine.
func (s *Session) Gateway() *payment.Gateway {
	return s.gateway
}

// Notifications drains the pending notifications.
func (s *Session) Notifications() []payment.Notification {
	return s.notifications.Drain()
}

// SetInformation saves the information form. An empty email falls back to
// the one given when the session was created.
func (s *Session) SetInformation(info Information) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	if info.Email == "" {
		info.Email = s.email
	}
	return s.controller.SetInformation(info)
}

// SelectShipping picks the shipping method.
func (s *Session) SelectShipping(methodID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	return s.controller.SelectShipping(methodID)
}

// ConfirmPayment advances past the payment step.
func (s *Session) ConfirmPayment() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	if s.controller.Step() != StepPayment {
		return ErrInvalidStep
	}
	return s.controller.Next()
}

// Back moves the checkout one step back.
func (s *Session) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.controller.Back()
}

// SelectPaymentMethod switches provider. Any running poller is stopped and
// the previous payment is discarded.
func (s *Session) SelectPaymentMethod(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionNotFound
	}
	if s.controller.Submitted() {
		return ErrAlreadySubmitted
	}
	if !s.registry.Has(name) {
		return fmt.Errorf("%w: %q", payment.ErrProviderNotFound, name)
	}

	s.poller.Stop()
	if err := s.gateway.SetProvider(name); err != nil {
		return err
	}
	s.controller.SetPaymentValid(false)
	s.paidAmount = decimal.Zero
	return nil
}

// StartPayment initiates a payment for the current cart total with the
// selected provider. Asynchronous providers are then polled until the
// payment settles.
func (s *Session) StartPayment(ctx context.Context, in PaymentInput) (*provider.InitiateResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionNotFound
	}
	if s.controller.Submitted() {
		return nil, ErrAlreadySubmitted
	}
	if s.controller.Step() != StepPayment || s.controller.PaymentValid() {
		return nil, ErrInvalidStep
	}
	name := s.gateway.State().CurrentProvider
	if name == "" {
		return nil, fmt.Errorf("%w: no payment method selected", payment.ErrProviderNotFound)
	}
	p, err := s.registry.Get(name)
	if err != nil {
		return nil, err
	}
	totals, _, err := s.controller.Quote(ctx, s.CartID)
	if err != nil {
		return nil, err
	}

	s.poller.Stop()
	s.paidAmount = decimal.Zero

	req := &provider.InitiateRequest{
		OrderID:         s.ID,
		Amount:          totals.Total,
		Currency:        s.currency,
		Description:     "Storefront order " + s.ID,
		CustomerEmail:   s.email,
		CustomerName:    in.CustomerName,
		PhoneNumber:     in.PhoneNumber,
		PaymentMethodID: in.PaymentMethodID,
		CallbackURL:     in.CallbackURL,
		Metadata: map[string]string{
			"cart_id":    s.CartID,
			"session_id": s.ID,
		},
	}
	if info := s.controller.Information(); info != nil {
		req.CustomerEmail = info.Email
		if req.CustomerName == "" {
			req.CustomerName = info.ShippingAddress.FullName()
		}
		if req.PhoneNumber == "" {
			req.PhoneNumber = info.ShippingAddress.Phone
		}
	}

	resp, err := s.gateway.InitiatePayment(ctx, req, name)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return resp, nil
	}
	s.paidAmount = totals.Total

	switch {
	case p.Config().AsyncConfirmation:
		s.startPolling(name)
	case resp.Status == provider.StatusCompleted:
		if _, err := s.checkStatusLocked(ctx, nil); err != nil {
			s.logger.Warn("confirm synchronous payment failed", zap.String("session_id", s.ID), zap.Error(err))
		}
	}
	return resp, nil
}

// CheckStatus refreshes the payment status from the provider. Identifiers
// set in req override the ones held by the gateway; req may be nil.
func (s *Session) CheckStatus(ctx context.Context, req *provider.StatusRequest) (*provider.StatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}
	return s.checkStatusLocked(ctx, req)
}

// CancelPayment cancels the in-flight payment.
func (s *Session) CancelPayment(ctx context.Context) (*provider.CancelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}

	polling := s.poller.Running()
	s.poller.Stop()

	resp, err := s.gateway.CancelPayment(ctx, "")
	if err == nil && resp.Success {
		s.controller.SetPaymentValid(false)
		s.paidAmount = decimal.Zero
		return resp, nil
	}
	if state := s.gateway.State(); polling && !state.PaymentStatus.IsTerminal() {
		s.startPolling(state.CurrentProvider)
	}
	return resp, err
}

// SimulateCompletion completes the current sandbox payment. It is only
// available in sandbox mode.
func (s *Session) SimulateCompletion(ctx context.Context) (*provider.StatusResponse, error) {
	if !s.sandbox {
		return nil, ErrSandboxDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}

	state := s.gateway.State()
	if state.PaymentID == "" {
		return nil, payment.ErrNoActivePayment
	}
	p, err := s.registry.Get(state.CurrentProvider)
	if err != nil {
		return nil, err
	}
	sandbox, ok := p.(*provider.TestProvider)
	if !ok {
		return nil, ErrSandboxDisabled
	}
	if err := sandbox.Complete(state.PaymentID); err != nil {
		return nil, fmt.Errorf("complete sandbox payment: %w", err)
	}
	return s.checkStatusLocked(ctx, nil)
}

// Submit places the order for a paid checkout at the review step.
func (s *Session) Submit(ctx context.Context) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionNotFound
	}

	state := s.gateway.State()
	placed, err := s.controller.Submit(ctx, SubmitInput{
		CartID:           s.CartID,
		UserID:           s.UserID,
		Currency:         s.currency,
		PaymentProvider:  state.CurrentProvider,
		PaymentReference: state.PaymentReference,
		PaidAmount:       s.paidAmount,
	})
	if err != nil {
		return nil, err
	}
	s.poller.Stop()
	s.logger.Info("checkout submitted",
		zap.String("session_id", s.ID),
		zap.String("order_no", placed.OrderNo),
		zap.String("provider", state.CurrentProvider),
	)
	return placed, nil
}

// View returns a snapshot of the session. Totals are omitted when the cart
// is empty or cannot be read.
func (s *Session) View(ctx context.Context) View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:             s.ID,
		CartID:         s.CartID,
		Step:           s.controller.Step(),
		PaymentValid:   s.controller.PaymentValid(),
		Submitted:      s.controller.Submitted(),
		Information:    s.controller.Information(),
		ShippingMethod: s.controller.ShippingMethod(),
		Payment:        s.gateway.State(),
		Polling:        s.poller.Running(),
		CreatedAt:      s.CreatedAt,
	}
	if v.Submitted {
		return v
	}
	totals, _, err := s.controller.Quote(ctx, s.CartID)
	switch {
	case err == nil:
		v.Totals = &totals
	case !errors.Is(err, ErrCartEmpty):
		s.logger.Warn("quote checkout failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return v
}

// Teardown stops polling and resets the payment state. Every later call
// that touches the session fails with ErrSessionNotFound.
func (s *Session) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.poller.Stop()
	s.cancel()
	s.gateway.Reset()
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, s.lastSeen.Load()))
}

func (s *Session) checkStatusLocked(ctx context.Context, req *provider.StatusRequest) (*provider.StatusResponse, error) {
	resp, err := s.gateway.CheckPaymentStatus(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if resp.Success && resp.Status.IsTerminal() {
		s.poller.Stop()
		s.applyTerminal(s.gateway.State())
	}
	return resp, nil
}

// applyTerminal syncs the payment step with a settled gateway state.
func (s *Session) applyTerminal(state payment.State) {
	valid := state.PaymentStatus == provider.StatusCompleted
	if valid != s.controller.PaymentValid() {
		s.controller.SetPaymentValid(valid)
	}
}

func (s *Session) startPolling(providerName string) {
	paymentID := s.gateway.State().PaymentID
	s.poller.Start(s.ctx, providerName, payment.PollHooks{
		OnTerminal: func(provider.Status) { s.onPollTerminal(paymentID) },
		OnTimeout:  func() { s.onPollTimeout(paymentID) },
	})
}

// Poll hooks run on the poller goroutine after the loop exits and may race a
// provider switch, so both re-check that the payment is still current.

func (s *Session) onPollTerminal(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.gateway.State()
	if s.closed || state.PaymentID != paymentID || !state.PaymentStatus.IsTerminal() {
		return
	}
	s.applyTerminal(state)
}

func (s *Session) onPollTimeout(paymentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.gateway.State()
	if s.closed || state.PaymentID != paymentID || state.PaymentStatus.IsTerminal() {
		return
	}
	s.logger.Info("payment verification timed out",
		zap.String("session_id", s.ID),
		zap.String("provider", state.CurrentProvider),
	)
	s.notifications.Notify(payment.Notification{
		Level:   payment.NotificationWarning,
		Title:   "Verification timed out",
		Message: "We could not confirm your payment yet. Check the status again or choose another method.",
		Time:    time.Now(),
	})
}
