package payment

import "errors"

// Module errors.
var (
	ErrProviderNotFound    = errors.New("payment provider not found")
	ErrNoPaymentIdentifier = errors.New("no payment identifier available")
	ErrNoActivePayment     = errors.New("no active payment")
	ErrCancelNotSupported  = errors.New("provider does not support cancellation")
)
