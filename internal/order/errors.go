package order

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidCode     = errors.New("invalid redemption code")
	ErrAlreadyRedeemed = errors.New("code already redeemed")
	ErrNotFound        = errors.New("order not found")
	ErrOrderCancelled  = errors.New("order cancelled")
	ErrOrderMismatch   = errors.New("order id does not match")
	ErrMissingField    = errors.New("required field is empty")
)

// StoreFailureError wraps transport, auth and unknown backend failures.
type StoreFailureError struct {
	Op  string
	Err error
}

func (e *StoreFailureError) Error() string {
	return fmt.Sprintf("store failure during %s: %s", e.Op, e.Err)
}

func (e *StoreFailureError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the store did not answer within the request timeout.
func (e *StoreFailureError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingField, field)
}
