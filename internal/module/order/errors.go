package order

import "errors"

// Module errors.
var (
	ErrOrderNotFound = errors.New("order not found")
	ErrNoItems       = errors.New("order has no items")
	ErrInvalidItem   = errors.New("invalid order item")
	ErrInvalidTotal  = errors.New("order total does not match its lines")
	ErrEmailRequired = errors.New("email is required")
)
