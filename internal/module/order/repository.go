package order

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository defines the interface for order data access.
type Repository interface {
	CreateOrder(ctx context.Context, order *Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	// ListUserOrders returns a page of the user's orders, newest first, and
	// the total count.
	ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]*Order, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a gorm-backed order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, order *Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var order Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListUserOrders(ctx context.Context, userID string, offset, limit int) ([]*Order, int64, error) {
	var orders []*Order
	var total int64

	query := r.db.WithContext(ctx).Model(&Order{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if offset < 0 || limit <= 0 || int64(offset) >= total {
		return []*Order{}, total, nil
	}
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// memoryRepository keeps orders in process memory when no database is configured.
type memoryRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*Order
}

// NewMemoryRepository creates an in-memory order repository.
func NewMemoryRepository() Repository {
	return &memoryRepository{orders: make(map[uuid.UUID]*Order)}
}

func (r *memoryRepository) CreateOrder(_ context.Context, order *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *order
	stored.Items = append([]Item(nil), order.Items...)
	r.orders[order.ID] = &stored
	return nil
}

func (r *memoryRepository) GetOrder(_ context.Context, id uuid.UUID) (*Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	out := *order
	return &out, nil
}

func (r *memoryRepository) ListUserOrders(_ context.Context, userID string, offset, limit int) ([]*Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Order
	for _, order := range r.orders {
		if order.UserID == userID {
			out := *order
			matched = append(matched, &out)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if offset < 0 || limit <= 0 || offset >= len(matched) {
		return []*Order{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}
