package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these so callers can use errors.Is.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Broker Specific Errors
	ErrBrokerUnavailable    = errors.New("broker API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the broker")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("broker authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrUnsupportedChannel   = errors.New("data channel not supported by broker")

	// Market Data Errors
	ErrTransientFetch = errors.New("historical window fetch failed")
	ErrStreamClosed   = errors.New("stream closed")

	// Risk Errors
	ErrRiskLimit = errors.New("order rejected by risk limits")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
