package order

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/shared/metrics"
	"github.com/storefront/server/internal/shared/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingRepository returns err from every call.
type failingRepository struct {
	err error
}

func (r failingRepository) CreateOrder(context.Context, *Order) error { return r.err }
func (r failingRepository) GetOrder(context.Context, uuid.UUID) (*Order, error) {
	return nil, r.err
}
func (r failingRepository) ListUserOrders(context.Context, string, int, int) ([]*Order, int64, error) {
	return nil, 0, r.err
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func validInput() *CreateOrderInput {
	address := Address{
		FirstName:  "Amina",
		LastName:   "Otieno",
		Line1:      "12 Moi Avenue",
		City:       "Nairobi",
		PostalCode: "00100",
		Country:    "KE",
	}
	return &CreateOrderInput{
		UserID: "user-1",
		Email:  "amina@example.com",
		Items: []Item{
			{ProductID: "p1", Name: "Kikoi", UnitPrice: d("1200"), Quantity: 2},
			{ProductID: "p2", Name: "Basket", UnitPrice: d("850.50"), Quantity: 1},
		},
		ShippingAddress:  address,
		BillingAddress:   address,
		ShippingMethod:   "standard",
		Subtotal:         d("3250.50"),
		ShippingCost:     d("300"),
		Tax:              d("520.08"),
		Total:            d("4070.58"),
		Currency:         "kes",
		PaymentProvider:  "mpesa",
		PaymentReference: "ws_CO_123",
	}
}

func TestService_CreateOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("paid order", func(t *testing.T) {
		m := metrics.New("test", prometheus.NewRegistry())
		svc := NewService(NewMemoryRepository(), m, nil)

		order, err := svc.CreateOrder(ctx, validInput())
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, order.ID)
		assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-[A-Z0-9]{6}$`), order.OrderNo)
		assert.Equal(t, StatusPaid, order.Status)
		assert.Equal(t, "KES", order.Currency)
		assert.True(t, order.Total.Equal(d("4070.58")))

		stored, err := svc.GetOrderByID(ctx, order.ID)
		require.NoError(t, err)
		assert.Equal(t, order.OrderNo, stored.OrderNo)
		assert.Len(t, stored.Items, 2)
		assert.Equal(t, "Otieno", stored.ShippingAddress.LastName)

		assert.Equal(t, float64(1), testutil.ToFloat64(m.OrdersCreatedTotal.WithLabelValues("mpesa")))
	})

	t.Run("pending without payment reference", func(t *testing.T) {
		svc := NewService(NewMemoryRepository(), nil, nil)
		in := validInput()
		in.PaymentReference = ""

		order, err := svc.CreateOrder(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, order.Status)
	})

	tests := []struct {
		name   string
		mutate func(in *CreateOrderInput)
		want   error
	}{
		{"no items", func(in *CreateOrderInput) { in.Items = nil }, ErrNoItems},
		{"no email", func(in *CreateOrderInput) { in.Email = "  " }, ErrEmailRequired},
		{"zero quantity", func(in *CreateOrderInput) { in.Items[0].Quantity = 0 }, ErrInvalidItem},
		{"negative price", func(in *CreateOrderInput) { in.Items[1].UnitPrice = d("-1") }, ErrInvalidItem},
		{"subtotal mismatch", func(in *CreateOrderInput) { in.Subtotal = d("3000") }, ErrInvalidTotal},
		{"total mismatch", func(in *CreateOrderInput) { in.Total = d("4000") }, ErrInvalidTotal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(NewMemoryRepository(), nil, nil)
			in := validInput()
			tt.mutate(in)

			_, err := svc.CreateOrder(ctx, in)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("repository failure", func(t *testing.T) {
		svc := NewService(failingRepository{err: errors.New("db down")}, nil, nil)
		_, err := svc.CreateOrder(ctx, validInput())
		assert.ErrorContains(t, err, "db down")
	})
}

func TestService_GetOrderByID_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil)
	_, err := svc.GetOrderByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestService_GetUserOrders(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		svc.now = func() time.Time { return at }
		order, err := svc.CreateOrder(ctx, validInput())
		require.NoError(t, err)
		ids = append(ids, order.ID)
	}
	other := validInput()
	other.UserID = "user-2"
	_, err := svc.CreateOrder(ctx, other)
	require.NoError(t, err)

	orders, total, err := svc.GetUserOrders(ctx, "user-1", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, orders, 3)
	assert.Equal(t, ids[2], orders[0].ID, "newest first")
	assert.Equal(t, ids[0], orders[2].ID)

	page, total, err := svc.GetUserOrders(ctx, "user-1", &pagination.Pagination{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, page, 1)
	assert.Equal(t, ids[0], page[0].ID)

	page, _, err = svc.GetUserOrders(ctx, "user-1", &pagination.Pagination{Page: 5, PageSize: 2})
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestService_GetUserOrders_FarPage(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepository(), nil, nil)
	_, err := svc.CreateOrder(ctx, validInput())
	require.NoError(t, err)

	page, total, err := svc.GetUserOrders(ctx, "user-1", &pagination.Pagination{Page: math.MaxInt, PageSize: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, page)
}

func TestMemoryRepository_NegativeOffset(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.CreateOrder(ctx, &Order{ID: uuid.New(), UserID: "user-1"}))

	orders, total, err := repo.ListUserOrders(ctx, "user-1", -40, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Empty(t, orders)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	order := &Order{ID: uuid.New(), Email: "a@example.com", Status: StatusPending}
	require.NoError(t, repo.CreateOrder(ctx, order))

	order.Status = StatusCancelled
	got, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)
}
