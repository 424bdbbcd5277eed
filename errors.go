package tokenledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// Operation errors
	ErrUnauthorized        = errors.New("tokenledger: unauthorized")
	ErrInvalidAmount       = errors.New("tokenledger: invalid amount")
	ErrInsufficientBalance = errors.New("tokenledger: insufficient balance")
	ErrOverflow            = errors.New("tokenledger: amount overflow")
	ErrSameAccount         = errors.New("tokenledger: transfer to self")

	// Entity errors
	ErrAccountNotFound  = errors.New("tokenledger: account not found")
	ErrTransferNotFound = errors.New("tokenledger: transfer record not found")

	// Lifecycle errors
	ErrNotInitialized     = errors.New("tokenledger: ledger not initialized")
	ErrAlreadyInitialized = errors.New("tokenledger: ledger already initialized")

	// Store errors
	ErrStoreNotReady     = errors.New("tokenledger: store not ready")
	ErrStoreClosed       = errors.New("tokenledger: store is closed")
	ErrTransactionFailed = errors.New("tokenledger: transaction failed")
	ErrMigrationFailed   = errors.New("tokenledger: migration failed")

	// Integrity errors
	ErrSupplyMismatch = errors.New("tokenledger: total supply does not match sum of balances")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tokenledger: validation failed for %s: %s", e.Field, e.Message)
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransferNotFound)
}

// IsRejected returns true if the error is a precondition failure: the
// operation was refused and no state changed.
func IsRejected(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverflow) ||
		errors.Is(err, ErrSameAccount)
}

// IsRetryable returns true if the error is temporary and the operation can
// be retried by the caller.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
