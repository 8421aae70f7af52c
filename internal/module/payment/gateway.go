package payment

import (
	"context"
	"sync"
	"time"

	"github.com/storefront/server/internal/module/payment/analytics"
	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// LoadingState is the progress indicator of the current attempt.
type LoadingState string

const (
	LoadingIdle         LoadingState = "idle"
	LoadingInitializing LoadingState = "initializing"
	LoadingProcessing   LoadingState = "processing"
	LoadingVerifying    LoadingState = "verifying"
	LoadingCompleted    LoadingState = "completed"
)

// State is the payment state of one checkout.
type State struct {
	IsLoading        bool            `json:"is_loading"`
	LoadingState     LoadingState    `json:"loading_state"`
	CurrentProvider  string          `json:"current_provider,omitempty"`
	PaymentID        string          `json:"payment_id,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty"`
	IframeURL        string          `json:"iframe_url,omitempty"`
	RedirectURL      string          `json:"redirect_url,omitempty"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	PaymentStatus    provider.Status `json:"payment_status,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

func (s State) identifiers() provider.StatusRequest {
	return provider.StatusRequest{
		PaymentID:     s.PaymentID,
		Reference:     s.PaymentReference,
		TransactionID: s.TransactionID,
	}
}

// GatewayOptions holds the optional collaborators of a Gateway.
type GatewayOptions struct {
	Recorder OutcomeRecorder
	Notifier Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// Gateway runs the payment state machine for one checkout.
//
// Adapter calls run without the lock. Their results are applied only while
// the attempt that issued them is still current, so a reset or provider
// switch during a call discards the stale result.
type Gateway struct {
	registry *ProviderRegistry
	recorder OutcomeRecorder
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time

	mu      sync.Mutex
	state   State
	attempt uint64
}

// NewGateway creates a gateway over the registry.
func NewGateway(registry *ProviderRegistry, opts GatewayOptions) *Gateway {
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		recorder: opts.Recorder,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger.Named("gateway"),
		now:      time.Now,
		state:    State{LoadingState: LoadingIdle},
	}
}

// State returns a copy of the current state.
func (g *Gateway) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// GetAvailableProviders returns the registered provider descriptors.
func (g *Gateway) GetAvailableProviders() []provider.Config {
	return g.registry.Configs()
}

// SetProvider selects the provider for the next payment and clears any
// previous payment. Unknown names leave the state untouched.
func (g *Gateway) SetProvider(name string) error {
	if _, err := g.registry.Get(name); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempt++
	g.state = State{LoadingState: LoadingIdle, CurrentProvider: name}
	return nil
}

// Reset clears the payment fields and abandons any in-flight call. The
// selected provider is kept.
func (g *Gateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempt++
	g.state = State{LoadingState: LoadingIdle, CurrentProvider: g.state.CurrentProvider}
}

// InitiatePayment starts a fresh payment attempt with the named provider, or
// the current one when name is empty. Adapter failures are reported in the
// response and the state; the returned error is only ErrProviderNotFound.
func (g *Gateway) InitiatePayment(ctx context.Context, req *provider.InitiateRequest, providerName string) (*provider.InitiateResponse, error) {
	p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}
	name := p.Name()

	g.mu.Lock()
	g.attempt++
	attempt := g.attempt
	g.state = State{
		IsLoading:       true,
		LoadingState:    LoadingInitializing,
		CurrentProvider: name,
	}
	g.mu.Unlock()

	g.record(ctx, analytics.OutcomeAttempt, name)
	g.transition(attempt, LoadingProcessing)

	start := time.Now()
	resp := p.InitiatePayment(ctx, req)
	if resp == nil {
		resp = &provider.InitiateResponse{Status: provider.StatusError, Error: "provider returned no response"}
	}
	g.metrics.RecordProviderCall(name, "initiate", resp.Success, time.Since(start))

	g.mu.Lock()
	if g.attempt != attempt {
		g.mu.Unlock()
		g.logger.Debug("discarding stale initiate result", zap.String("provider", name))
		return resp, nil
	}
	g.state.IsLoading = false
	if resp.Success {
		g.state.PaymentID = resp.PaymentID
		g.state.PaymentReference = firstNonEmpty(resp.Reference, resp.PaymentID)
		g.state.TransactionID = resp.TransactionID
		g.state.IframeURL = resp.IframeURL
		g.state.RedirectURL = resp.RedirectURL
		g.state.PaymentStatus = provider.StatusPending
		g.state.LoadingState = LoadingIdle
		if p.Config().AsyncConfirmation {
			g.state.LoadingState = LoadingVerifying
		}
	} else {
		g.state.PaymentStatus = provider.StatusError
		g.state.ErrorMessage = resp.Error
		g.state.LoadingState = LoadingIdle
	}
	g.mu.Unlock()

	if !resp.Success {
		g.logger.Warn("payment initiation failed", zap.String("provider", name), zap.String("error", resp.Error))
		g.record(ctx, analytics.OutcomeError, name)
		g.notify(NotificationError, "Payment failed", firstNonEmpty(resp.Error, "The payment could not be started."))
		return resp, nil
	}

	g.logger.Info("payment initiated",
		zap.String("provider", name),
		zap.String("payment_id", resp.PaymentID),
		zap.String("reference", resp.Reference),
	)
	if p.Config().RequiresPhone {
		g.notify(NotificationInfo, "Check your phone", "Enter your PIN on your phone to complete the payment.")
	} else {
		g.notify(NotificationInfo, "Payment started", "Complete the payment to continue.")
	}
	return resp, nil
}

// CheckPaymentStatus looks up the payment status. Identifiers in req take
// precedence over those held in state. It never stops a poller; callers
// decide when to stop.
func (g *Gateway) CheckPaymentStatus(ctx context.Context, req *provider.StatusRequest, providerName string) (*provider.StatusResponse, error) {
	g.mu.Lock()
	ids := g.state.identifiers()
	attempt := g.attempt
	g.mu.Unlock()

	if req != nil {
		ids.PaymentID = firstNonEmpty(req.PaymentID, ids.PaymentID)
		ids.Reference = firstNonEmpty(req.Reference, ids.Reference)
		ids.TransactionID = firstNonEmpty(req.TransactionID, ids.TransactionID)
	}
	if ids.Empty() {
		return nil, ErrNoPaymentIdentifier
	}

	p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}
	name := p.Name()

	start := time.Now()
	resp := p.CheckPaymentStatus(ctx, &ids)
	if resp == nil {
		resp = &provider.StatusResponse{Error: "provider returned no response"}
	}
	g.metrics.RecordProviderCall(name, "status", resp.Success, time.Since(start))

	g.mu.Lock()
	if g.attempt != attempt {
		g.mu.Unlock()
		g.logger.Debug("discarding stale status result", zap.String("provider", name))
		return resp, nil
	}
	if !resp.Success {
		g.state.ErrorMessage = resp.Error
		g.mu.Unlock()
		g.logger.Warn("payment status check failed", zap.String("provider", name), zap.String("error", resp.Error))
		g.notify(NotificationError, "Status check failed", firstNonEmpty(resp.Error, "Could not check the payment status."))
		return resp, nil
	}
	previous := g.state.PaymentStatus
	g.state.PaymentStatus = resp.Status
	switch {
	case resp.Status == provider.StatusCompleted:
		g.state.LoadingState = LoadingCompleted
	case resp.Status.IsTerminal():
		g.state.LoadingState = LoadingIdle
	}
	g.mu.Unlock()

	// Outcomes are counted once per status transition.
	if resp.Status != previous {
		g.settle(ctx, name, resp.Status)
	}
	return resp, nil
}

// CancelPayment cancels the in-flight payment.
func (g *Gateway) CancelPayment(ctx context.Context, providerName string) (*provider.CancelResponse, error) {
	g.mu.Lock()
	ids := g.state.identifiers()
	status := g.state.PaymentStatus
	attempt := g.attempt
	g.mu.Unlock()

	if ids.Empty() || status == provider.StatusNone || status.IsTerminal() {
		return nil, ErrNoActivePayment
	}

	p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}
	canceler, ok := p.(provider.Canceler)
	if !ok {
		return nil, ErrCancelNotSupported
	}
	name := p.Name()

	start := time.Now()
	resp := canceler.CancelPayment(ctx, &ids)
	if resp == nil {
		resp = &provider.CancelResponse{Error: "provider returned no response"}
	}
	g.metrics.RecordProviderCall(name, "cancel", resp.Success, time.Since(start))

	g.mu.Lock()
	if g.attempt != attempt {
		g.mu.Unlock()
		return resp, nil
	}
	if !resp.Success {
		g.state.ErrorMessage = resp.Error
		g.mu.Unlock()
		g.logger.Warn("payment cancel failed", zap.String("provider", name), zap.String("error", resp.Error))
		g.notify(NotificationError, "Cancel failed", firstNonEmpty(resp.Error, "The payment could not be cancelled."))
		return resp, nil
	}
	g.state.PaymentStatus = provider.StatusCancelled
	g.state.LoadingState = LoadingIdle
	g.state.IsLoading = false
	g.mu.Unlock()

	g.logger.Info("payment cancelled", zap.String("provider", name), zap.String("payment_id", ids.PaymentID))
	g.record(ctx, analytics.OutcomeAbandoned, name)
	g.notify(NotificationInfo, "Payment cancelled", "The payment was cancelled.")
	return resp, nil
}

func (g *Gateway) settle(ctx context.Context, name string, status provider.Status) {
	switch status {
	case provider.StatusCompleted:
		g.record(ctx, analytics.OutcomeCompleted, name)
		g.notify(NotificationSuccess, "Payment successful", "Your payment has been confirmed.")
	case provider.StatusFailed:
		g.record(ctx, analytics.OutcomeFailed, name)
		g.notify(NotificationError, "Payment failed", "The payment was declined. Please try again.")
	case provider.StatusCancelled:
		g.record(ctx, analytics.OutcomeAbandoned, name)
		g.notify(NotificationWarning, "Payment cancelled", "The payment was cancelled.")
	case provider.StatusError:
		g.record(ctx, analytics.OutcomeError, name)
		g.notify(NotificationError, "Payment error", "The payment could not be processed.")
	case provider.StatusRefunded:
		g.notify(NotificationInfo, "Payment refunded", "The payment has been refunded.")
	}
}

func (g *Gateway) resolve(name string) (provider.Provider, error) {
	if name == "" {
		g.mu.Lock()
		name = g.state.CurrentProvider
		g.mu.Unlock()
	}
	if name == "" {
		return nil, ErrProviderNotFound
	}
	return g.registry.Get(name)
}

func (g *Gateway) transition(attempt uint64, to LoadingState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.attempt == attempt {
		g.state.LoadingState = to
	}
}

func (g *Gateway) record(ctx context.Context, outcome analytics.Outcome, name string) {
	if g.recorder == nil {
		return
	}
	if err := g.recorder.Record(context.WithoutCancel(ctx), outcome, name); err != nil {
		g.logger.Warn("record payment outcome failed",
			zap.String("outcome", string(outcome)),
			zap.String("provider", name),
			zap.Error(err),
		)
	}
}

func (g *Gateway) notify(level NotificationLevel, title, message string) {
	g.notifier.Notify(Notification{Level: level, Title: title, Message: message, Time: g.now()})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
