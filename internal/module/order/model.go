package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status represents the status of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

// Address is a postal address. The validate tags are applied to checkout forms.
type Address struct {
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Email      string `json:"email,omitempty" validate:"omitempty,email"`
	Phone      string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
	Line1      string `json:"address_line1" validate:"required,max=200"`
	Line2      string `json:"address_line2,omitempty" validate:"max=200"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state,omitempty" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
}

// FullName returns "first last".
func (a Address) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Item is an order line.
type Item struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns unit price times quantity.
func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order represents a placed storefront order. Items and addresses are
// stored as JSON columns.
type Order struct {
	ID               uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	OrderNo          string          `json:"order_no" gorm:"uniqueIndex;not null"`
	UserID           string          `json:"user_id,omitempty" gorm:"index"`
	Email            string          `json:"email" gorm:"not null"`
	Status           Status          `json:"status" gorm:"not null;default:pending"`
	Items            []Item          `json:"items" gorm:"type:jsonb;serializer:json"`
	ShippingAddress  Address         `json:"shipping_address" gorm:"type:jsonb;serializer:json"`
	BillingAddress   Address         `json:"billing_address" gorm:"type:jsonb;serializer:json"`
	ShippingMethod   string          `json:"shipping_method"`
	Subtotal         decimal.Decimal `json:"subtotal" gorm:"type:numeric(12,2)"`
	ShippingCost     decimal.Decimal `json:"shipping_cost" gorm:"type:numeric(12,2)"`
	Tax              decimal.Decimal `json:"tax" gorm:"type:numeric(12,2)"`
	Total            decimal.Decimal `json:"total" gorm:"type:numeric(12,2)"`
	Currency         string          `json:"currency" gorm:"size:3;not null"`
	PaymentProvider  string          `json:"payment_provider,omitempty"`
	PaymentReference string          `json:"payment_reference,omitempty" gorm:"index"`
	CreatedAt        time.Time       `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName returns the database table name.
func (Order) TableName() string {
	return "orders"
}

// IsPaid returns true if the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == StatusPaid
}

// VisibleTo reports whether userID may read the order. Guest orders are
// readable by anyone holding the id.
func (o *Order) VisibleTo(userID string) bool {
	return o.UserID == "" || o.UserID == userID
}
