package cart

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Service implements cart operations. Updates are serialised per process.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time

	mu sync.Mutex
}

// NewService creates a new cart service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger.Named("cart"), now: time.Now}
}

// GetCart returns the cart, empty when unknown.
func (s *Service) GetCart(ctx context.Context, id string) (*Cart, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// SetItem adds a line or replaces the quantity of an existing one. A zero
// quantity removes the line.
func (s *Service) SetItem(ctx context.Context, id string, item Item) (*Cart, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	if item.ProductID == "" || item.Quantity < 0 || item.UnitPrice.IsNegative() {
		return nil, ErrInvalidItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	i := cart.indexOf(item.ProductID)
	switch {
	case item.Quantity == 0 && i >= 0:
		cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	case item.Quantity == 0:
		return cart, nil
	case i >= 0:
		cart.Items[i] = item
	default:
		cart.Items = append(cart.Items, item)
	}
	cart.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// RemoveItem removes a line.
func (s *Service) RemoveItem(ctx context.Context, id, productID string) (*Cart, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cart, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	i := cart.indexOf(productID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %q", ErrItemNotInCart, productID)
	}
	cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
	cart.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}

// ClearCart deletes the cart.
func (s *Service) ClearCart(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Debug("cart cleared", zap.String("cart_id", id))
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > 128 {
		return ErrInvalidCartID
	}
	return nil
}
