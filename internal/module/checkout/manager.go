package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/shared/metrics"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned by Create once Shutdown has been called.
var ErrShuttingDown = errors.New("checkout is shutting down")

// ManagerConfig holds session settings.
type ManagerConfig struct {
	SessionTTL          time.Duration
	SweepInterval       time.Duration
	Sandbox             bool
	Currency            string
	DefaultProvider     string
	NotificationBacklog int
	Poller              payment.PollerConfig
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Registry *payment.ProviderRegistry
	Recorder payment.OutcomeRecorder
	Pricing  *Pricing
	Carts    CartService
	Orders   OrderCreator
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

// CreateInput opens a checkout for a cart.
type CreateInput struct {
	CartID string
	Email  string
	UserID string
}

// Manager owns the live checkout sessions.
type Manager struct {
	config ManagerConfig
	deps   Dependencies
	logger *zap.Logger
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a session manager.
func NewManager(cfg ManagerConfig, deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	return &Manager{
		config:   cfg,
		deps:     deps,
		logger:   deps.Logger.Named("checkout"),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Create opens a session for a non-empty cart. The configured default
// provider is preselected when it is registered.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*Session, error) {
	c, err := m.deps.Carts.GetCart(ctx, in.CartID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c.IsEmpty() {
		return nil, ErrCartEmpty
	}

	s := m.newSession(in)
	if name := m.config.DefaultProvider; name != "" && m.deps.Registry.Has(name) {
		if err := s.gateway.SetProvider(name); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		s.Teardown()
		return nil, ErrShuttingDown
	}
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.deps.Metrics.SetActiveSessions(n)
	m.logger.Info("checkout session opened",
		zap.String("session_id", s.ID),
		zap.String("cart_id", s.CartID),
		zap.Bool("guest", s.UserID == ""),
	)
	return s, nil
}

// Get returns a live session and marks it as used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	s.touch(m.now())
	return s, nil
}

// Close tears a session down and forgets it.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.Teardown()
	m.deps.Metrics.SetActiveSessions(n)
	m.logger.Debug("checkout session closed", zap.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep tears down sessions idle for longer than the TTL and returns how
// many were removed.
func (m *Manager) Sweep() int {
	now := m.now()

	m.mu.Lock()
	var expired []*Session
	for id, s := range m.sessions {
		if s.idleSince(now) > m.config.SessionTTL {
			expired = append(expired, s)
			delete(m.sessions, id)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range expired {
		s.Teardown()
	}
	if len(expired) > 0 {
		m.deps.Metrics.SetActiveSessions(n)
		m.logger.Info("expired checkout sessions", zap.Int("count", len(expired)), zap.Int("active", n))
	}
	return len(expired)
}

// Run sweeps expired sessions until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Shutdown tears down every session and rejects new ones.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Teardown()
	}
	m.deps.Metrics.SetActiveSessions(0)
	m.logger.Info("checkout sessions shut down", zap.Int("count", len(sessions)))
}

// ShippingMethods returns the configured shipping catalogue.
func (m *Manager) ShippingMethods() []ShippingMethod {
	return m.deps.Pricing.ShippingMethods()
}

func (m *Manager) newSession(in CreateInput) *Session {
	id := uuid.New().String()
	logger := m.logger.With(zap.String("session_id", id))
	notifications := newNotificationBuffer(m.config.NotificationBacklog)

	gateway := payment.NewGateway(m.deps.Registry, payment.GatewayOptions{
		Recorder: m.deps.Recorder,
		Notifier: notifications,
		Metrics:  m.deps.Metrics,
		Logger:   logger,
	})
	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		ID:            id,
		CartID:        in.CartID,
		UserID:        in.UserID,
		CreatedAt:     m.now(),
		email:         in.Email,
		currency:      m.config.Currency,
		sandbox:       m.config.Sandbox,
		registry:      m.deps.Registry,
		gateway:       gateway,
		poller:        payment.NewPoller(gateway, m.config.Poller, m.deps.Metrics, logger),
		controller:    NewController(m.deps.Pricing, m.deps.Carts, m.deps.Orders, logger),
		notifications: notifications,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}
	s.touch(s.CreatedAt)
	return s
}
