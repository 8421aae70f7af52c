package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/storefront/server/internal/shared/config"
	"github.com/stretchr/testify/require"
)

const testCartID = "cart-1"

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testCheckoutConfig() *config.CheckoutConfig {
	return &config.CheckoutConfig{
		TaxRate: "0.16",
		Shipping: []config.ShippingMethodConfig{
			{ID: "standard", Name: "Standard delivery", Cost: "300", Days: 5},
			{ID: "express", Name: "Express delivery", Cost: "750", Days: 1},
			{ID: "pickup", Name: "Store pickup", Cost: "0", Days: 0},
		},
	}
}

func testPricing(t *testing.T) *Pricing {
	t.Helper()
	p, err := NewPricing(testCheckoutConfig())
	require.NoError(t, err)
	return p
}

func validAddress() order.Address {
	return order.Address{
		FirstName:  "Amina",
		LastName:   "Otieno",
		Phone:      "0712345678",
		Line1:      "12 Moi Avenue",
		City:       "Nairobi",
		PostalCode: "00100",
		Country:    "KE",
	}
}

func validInformation() Information {
	return Information{
		Email:                 "amina@example.com",
		ShippingAddress:       validAddress(),
		BillingSameAsShipping: true,
	}
}

// fixture wires a manager over in-memory carts and orders and two sandbox
// providers: "test" confirms asynchronously and "card" synchronously.
type fixture struct {
	carts    *cart.Service
	orders   order.Repository
	async    *provider.TestProvider
	sync     *provider.TestProvider
	registry *payment.ProviderRegistry
	manager  *Manager
}

type fixtureOption func(*ManagerConfig)

func withSandbox(on bool) fixtureOption {
	return func(c *ManagerConfig) { c.Sandbox = on }
}

func withPoller(cfg payment.PollerConfig) fixtureOption {
	return func(c *ManagerConfig) { c.Poller = cfg }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	carts := cart.NewService(cart.NewMemoryStore(), nil)
	_, err := carts.SetItem(context.Background(), testCartID, cart.Item{
		ProductID: "p1", Name: "Kikoi", UnitPrice: d("1200"), Quantity: 2,
	})
	require.NoError(t, err)

	repo := order.NewMemoryRepository()
	async := provider.NewTestProvider(provider.Config{}, nil)
	sync := provider.NewTestProvider(provider.Config{Name: "card", DisplayName: "Card"}, nil)
	registry := payment.NewProviderRegistry(async, sync)

	cfg := ManagerConfig{
		SessionTTL:      time.Hour,
		Sandbox:         true,
		Currency:        "KES",
		DefaultProvider: "test",
		Poller: payment.PollerConfig{
			Interval:    time.Millisecond,
			SlowAfter:   10,
			MaxAttempts: 1000,
		},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	manager := NewManager(cfg, Dependencies{
		Registry: registry,
		Pricing:  testPricing(t),
		Carts:    carts,
		Orders:   order.NewService(repo, nil, nil),
	})
	t.Cleanup(manager.Shutdown)

	return &fixture{
		carts:    carts,
		orders:   repo,
		async:    async,
		sync:     sync,
		registry: registry,
		manager:  manager,
	}
}

func (f *fixture) open(t *testing.T) *Session {
	t.Helper()
	s, err := f.manager.Create(context.Background(), CreateInput{CartID: testCartID, Email: "amina@example.com"})
	require.NoError(t, err)
	return s
}

// toPayment moves a session to the payment step with standard shipping.
func (f *fixture) toPayment(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SetInformation(validInformation()))
	require.NoError(t, s.SelectShipping("standard"))
	require.Equal(t, StepPayment, s.View(context.Background()).Step)
}

// stubOrders records the last order input.
type stubOrders struct {
	last *order.CreateOrderInput
	err  error
}

func (s *stubOrders) CreateOrder(_ context.Context, in *order.CreateOrderInput) (*order.Order, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.last = in
	return &order.Order{OrderNo: "ORD-TEST", Total: in.Total, Status: order.StatusPaid}, nil
}

// flakyCarts fails ClearCart.
type flakyCarts struct {
	*cart.Service
	clearErr error
}

func (f flakyCarts) ClearCart(context.Context, string) error {
	return f.clearErr
}
