package checkout

import (
	"context"

	"github.com/storefront/server/internal/module/cart"
	"github.com/storefront/server/internal/module/order"
)

// CartService is the cart access checkout needs. It is satisfied by *cart.Service.
type CartService interface {
	GetCart(ctx context.Context, id string) (*cart.Cart, error)
	ClearCart(ctx context.Context, id string) error
}

// OrderCreator places orders. It is satisfied by *order.Service.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in *order.CreateOrderInput) (*order.Order, error)
}
