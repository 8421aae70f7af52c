package cart

import "errors"

// Module errors.
var (
	ErrInvalidCartID = errors.New("invalid cart id")
	ErrInvalidItem   = errors.New("invalid cart item")
	ErrItemNotInCart = errors.New("item not in cart")
)
