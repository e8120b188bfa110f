package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the mint or account does not exist on chain.
	ErrNotFound = errors.New("gateway: not found")
	// ErrInvalidAddress indicates caller input that can never succeed.
	ErrInvalidAddress = errors.New("gateway: invalid address")
	// ErrInsufficientFunds indicates the source account cannot cover a transfer.
	// Fatal per entry; never retried.
	ErrInsufficientFunds = errors.New("gateway: insufficient funds")
)

// NetworkError wraps a transient transport failure. Operations failing with a
// NetworkError may be retried; every other error is single-attempt.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("gateway: network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsTransient reports whether err belongs to the retryable class. Deadline
// expiry counts as transient: an exceeded per-call timeout is a network
// failure, not a silent hang.
func IsTransient(err error) bool {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
