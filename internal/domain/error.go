package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("could not read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")

	// Billing
	ErrUnknownTier          = errors.New("unknown plan tier")
	ErrFreeTier             = errors.New("free tier cannot be purchased")
	ErrInvalidBillingCycle  = errors.New("invalid billing cycle")
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrMissingPaymentParams = errors.New("missing payment parameters")
	ErrSignatureMismatch    = errors.New("payment signature verification failed")
	ErrOrderOwnership       = errors.New("order does not belong to the authenticated user")
	ErrUnsettleableOrder    = errors.New("order does not name a purchasable tier")

	// Access
	ErrUnauthenticated = errors.New("authentication required")
	ErrSessionExpired  = errors.New("session expired")
	ErrQuotaExceeded   = errors.New("scan quota exceeded")
	ErrRateLimited     = errors.New("too many requests")
	ErrLocked          = errors.New("resource is locked")

	// Upstream
	ErrProcessingFailed = errors.New("invoice processing failed")
)

// GatewayError carries the payment gateway's own message so it can be surfaced
// to the caller as error details.
type GatewayError struct {
	Op      string
	Status  int
	Message string
}

func (e *GatewayError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("gateway %s: %s", e.Op, e.Message)
}
