package domain

import "errors"

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrUpstreamProcessor    = errors.New("payment processor error")
	ErrOrderPersist         = errors.New("order persist failed")
	ErrStockUpdate          = errors.New("stock update failed")
	ErrOrderReconciliation  = errors.New("order reconciliation failed")
	ErrCheckoutFailed       = errors.New("checkout failed")
)

// ValidationError carries a message that is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func Invalid(msg string) error {
	return &ValidationError{Message: msg}
}
