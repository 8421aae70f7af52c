package order

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/storefront/server/internal/shared/metrics"
	"github.com/storefront/server/internal/shared/pagination"
	"github.com/storefront/server/internal/shared/random"
	"go.uber.org/zap"
)

// CreateOrderInput holds everything needed to place an order.
type CreateOrderInput struct {
	UserID           string
	Email            string
	Items            []Item
	ShippingAddress  Address
	BillingAddress   Address
	ShippingMethod   string
	Subtotal         decimal.Decimal
	ShippingCost     decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
	Currency         string
	PaymentProvider  string
	PaymentReference string
}

// Service implements order operations.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a new order service.
func NewService(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logger.Named("order"),
		now:     time.Now,
	}
}

// CreateOrder validates and persists an order. Orders carrying a payment
// reference are recorded as paid.
func (s *Service) CreateOrder(ctx context.Context, in *CreateOrderInput) (*Order, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &Order{
		ID:               uuid.New(),
		OrderNo:          generateOrderNo(now),
		UserID:           in.UserID,
		Email:            strings.TrimSpace(in.Email),
		Status:           StatusPending,
		Items:            append([]Item(nil), in.Items...),
		ShippingAddress:  in.ShippingAddress,
		BillingAddress:   in.BillingAddress,
		ShippingMethod:   in.ShippingMethod,
		Subtotal:         in.Subtotal,
		ShippingCost:     in.ShippingCost,
		Tax:              in.Tax,
		Total:            in.Total,
		Currency:         strings.ToUpper(in.Currency),
		PaymentProvider:  in.PaymentProvider,
		PaymentReference: in.PaymentReference,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if order.PaymentReference != "" {
		order.Status = StatusPaid
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	s.metrics.RecordOrderCreated(order.PaymentProvider)
	s.logger.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("order_no", order.OrderNo),
		zap.String("status", string(order.Status)),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("currency", order.Currency),
	)
	return order, nil
}

// GetOrderByID returns an order.
func (s *Service) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// GetUserOrders returns a page of the user's orders, newest first.
func (s *Service) GetUserOrders(ctx context.Context, userID string, p *pagination.Pagination) ([]*Order, int64, error) {
	if p == nil {
		p = pagination.New()
	}
	orders, total, err := s.repo.ListUserOrders(ctx, userID, p.Offset(), p.Limit())
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	return orders, total, nil
}

func validateInput(in *CreateOrderInput) error {
	if in == nil || len(in.Items) == 0 {
		return ErrNoItems
	}
	if strings.TrimSpace(in.Email) == "" {
		return ErrEmailRequired
	}

	subtotal := decimal.Zero
	for _, item := range in.Items {
		if item.ProductID == "" || item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: %q", ErrInvalidItem, item.ProductID)
		}
		subtotal = subtotal.Add(item.LineTotal())
	}
	if !subtotal.Equal(in.Subtotal) {
		return fmt.Errorf("%w: subtotal %s, lines %s", ErrInvalidTotal, in.Subtotal, subtotal)
	}
	if !in.Subtotal.Add(in.ShippingCost).Add(in.Tax).Equal(in.Total) {
		return fmt.Errorf("%w: total %s", ErrInvalidTotal, in.Total)
	}
	return nil
}

func generateOrderNo(now time.Time) string {
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), random.UpperAlphaNum(6))
}
