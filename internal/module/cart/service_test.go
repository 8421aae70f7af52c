package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, price string, qty int) Item {
	return Item{ProductID: id, Name: "Product " + id, UnitPrice: decimal.RequireFromString(price), Quantity: qty}
}

func TestService_SetItem(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	cart, err := svc.SetItem(ctx, "c1", item("p1", "100", 2))
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, fixed, cart.UpdatedAt)

	cart, err = svc.SetItem(ctx, "c1", item("p2", "49.99", 1))
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, "249.99", cart.Subtotal().StringFixed(2))

	// Update quantity in place.
	cart, err = svc.SetItem(ctx, "c1", item("p1", "100", 5))
	require.NoError(t, err)
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 5, cart.Items[0].Quantity)

	// Zero quantity removes.
	cart, err = svc.SetItem(ctx, "c1", item("p2", "49.99", 0))
	require.NoError(t, err)
	assert.Len(t, cart.Items, 1)

	stored, err := svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "500.00", stored.Subtotal().StringFixed(2))
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)

	_, err := svc.GetCart(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidCartID)

	_, err = svc.SetItem(ctx, "c1", Item{Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = svc.SetItem(ctx, "c1", item("p1", "-5", 1))
	assert.ErrorIs(t, err, ErrInvalidItem)

	_, err = svc.RemoveItem(ctx, "c1", "missing")
	assert.ErrorIs(t, err, ErrItemNotInCart)
}

func TestService_RemoveAndClear(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil)

	_, err := svc.SetItem(ctx, "c1", item("p1", "10", 1))
	require.NoError(t, err)
	_, err = svc.SetItem(ctx, "c1", item("p2", "20", 1))
	require.NoError(t, err)

	cart, err := svc.RemoveItem(ctx, "c1", "p1")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "p2", cart.Items[0].ProductID)

	require.NoError(t, svc.ClearCart(ctx, "c1"))
	cart, err = svc.GetCart(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

type brokenStore struct{ *MemoryStore }

func (brokenStore) Save(context.Context, *Cart) error { return errors.New("store down") }

func TestService_StoreFailure(t *testing.T) {
	svc := NewService(brokenStore{NewMemoryStore()}, nil)
	_, err := svc.SetItem(context.Background(), "c1", item("p1", "10", 1))
	assert.ErrorContains(t, err, "store down")
}
