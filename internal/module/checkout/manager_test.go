package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/order"
	"github.com/storefront/server/internal/module/payment"
	"github.com/storefront/server/internal/module/payment/provider"
	"github.com/storefront/server/internal/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_CreateRejectsEmptyCart(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.Create(context.Background(), CreateInput{CartID: "empty-cart"})
	assert.ErrorIs(t, err, ErrCartEmpty)

	_, err = f.manager.Create(context.Background(), CreateInput{CartID: ""})
	assert.ErrorIs(t, err, cart.ErrInvalidCartID)
	assert.Zero(t, f.manager.Len())
}

func TestManager_UnknownDefaultProvider(t *testing.T) {
	f := newFixture(t, func(c *ManagerConfig) { c.DefaultProvider = "stripe" })
	s := f.open(t)
	assert.Empty(t, s.Gateway().State().CurrentProvider)

	f.toPayment(t, s)
	_, err := s.StartPayment(context.Background(), PaymentInput{})
	assert.ErrorIs(t, err, payment.ErrProviderNotFound)
}

func TestManager_GetAndClose(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)

	got, err := f.manager.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	require.NoError(t, f.manager.Close(s.ID))
	_, err = f.manager.Get(s.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, f.manager.Close(s.ID), ErrSessionNotFound)
}

func TestManager_SweepExpiresIdleSessions(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.manager.now = func() time.Time { return now }

	idle := f.open(t)
	f.toPayment(t, idle)
	_, err := idle.StartPayment(context.Background(), PaymentInput{})
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	active := f.open(t)

	now = now.Add(30 * time.Minute)
	assert.Equal(t, 1, f.manager.Sweep())
	assert.Equal(t, 1, f.manager.Len())

	_, err = f.manager.Get(idle.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, idle.View(context.Background()).Polling)

	_, err = f.manager.Get(active.ID)
	require.NoError(t, err)

	// Get refreshed the active session.
	now = now.Add(59 * time.Minute)
	assert.Zero(t, f.manager.Sweep())
}

func TestManager_Run(t *testing.T) {
	f := newFixture(t, func(c *ManagerConfig) {
		c.SessionTTL = time.Millisecond
		c.SweepInterval = time.Millisecond
	})
	f.open(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.manager.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return f.manager.Len() == 0 }, time.Second, 2*time.Millisecond)
	cancel()
	<-done
}

func TestManager_Shutdown(t *testing.T) {
	f := newFixture(t)
	s := f.open(t)
	f.toPayment(t, s)
	_, err := s.StartPayment(context.Background(), PaymentInput{})
	require.NoError(t, err)

	f.manager.Shutdown()
	assert.Zero(t, f.manager.Len())
	assert.False(t, s.View(context.Background()).Polling)

	_, err = f.manager.Create(context.Background(), CreateInput{CartID: testCartID})
	assert.ErrorIs(t, err, ErrShuttingDown)
}

func TestManager_ActiveSessionsGauge(t *testing.T) {
	m := metrics.New("storefront", prometheus.NewRegistry())
	carts := cart.NewService(cart.NewMemoryStore(), nil)
	_, err := carts.SetItem(context.Background(), testCartID, cart.Item{
		ProductID: "p1", Name: "Kikoi", UnitPrice: d("1200"), Quantity: 2,
	})
	require.NoError(t, err)
	manager := NewManager(ManagerConfig{Currency: "KES"}, Dependencies{
		Registry: payment.NewProviderRegistry(provider.NewTestProvider(provider.Config{}, nil)),
		Pricing:  testPricing(t),
		Carts:    carts,
		Orders:   order.NewService(order.NewMemoryRepository(), nil, nil),
		Metrics:  m,
	})

	a, err := manager.Create(context.Background(), CreateInput{CartID: testCartID})
	require.NoError(t, err)
	_, err = manager.Create(context.Background(), CreateInput{CartID: testCartID})
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CheckoutSessionsActive))

	require.NoError(t, manager.Close(a.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CheckoutSessionsActive))

	manager.Shutdown()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CheckoutSessionsActive))
}

func TestManager_ConcurrentCreate(t *testing.T) {
	f := newFixture(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.manager.Create(context.Background(), CreateInput{CartID: testCartID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, f.manager.Len())
}
