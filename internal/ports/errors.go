package ports

import (
	"errors"
	"fmt"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")
	ErrMissingCredentials = errors.New("missing exchange API key or secret")
	ErrRuleViolation      = errors.New("order violates trading rule")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)

// VenueError is a rejection reported by the exchange. Code is the venue's
// (negative) error code; Kind is the standard error it was classified as.
type VenueError struct {
	Op      string
	Code    int64
	Message string
	Detail  string // Venue-specific explanation, empty when the code has none
	Kind    error
}

func (e *VenueError) Error() string {
	msg := fmt.Sprintf("%s: venue error %d: %s", e.Op, e.Code, e.Message)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Unwrap exposes the classification so callers can use errors.Is.
func (e *VenueError) Unwrap() error {
	return e.Kind
}

// IsVenueRejection reports whether err is a venue rejection (as opposed to a
// transport, configuration or local error).
func IsVenueRejection(err error) bool {
	var ve *VenueError
	return errors.As(err, &ve)
}
