package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSignature    = errors.New("invalid payment signature")
	ErrPaymentNotSucceeded = errors.New("payment failed or pending")
	ErrPersistence         = errors.New("payment store failure")
	ErrOrderInProgress     = errors.New("another order for this user is being created")
	ErrRateLimited         = errors.New("too many order attempts")
)

// RateLimitError reports a rejected create-order call together with the number
// of seconds until the window resets.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%v: retry after %ds", ErrRateLimited, e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

func persistenceError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}
