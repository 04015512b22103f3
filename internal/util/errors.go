package util

import "errors"

// Common application-specific errors.
var (
	ErrInvalidAmount      = errors.New("amount must be a positive integer")
	ErrInvalidReason      = errors.New("reason must not be empty")
	ErrInsufficientFunds  = errors.New("insufficient mapos")
	ErrAccountNotFound    = errors.New("account not found")
	ErrDuplicateAccount   = errors.New("account already exists")
	ErrDuplicateEntry     = errors.New("idempotency key already used")
	ErrCorruptRecord      = errors.New("corrupt ledger record")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input provided")
	ErrNotFound           = errors.New("resource not found")
)

// IsError reports whether err matches the target sentinel error.
func IsError(err, target error) bool {
	return errors.Is(err, target)
}
