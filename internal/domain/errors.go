package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable.
// Timeouts are network errors: a timed-out submission may still have
// landed on the ledger, so callers must treat remote state as unknown.
type NetworkError struct {
	Op        string // Operation that failed (e.g., "submit", "fetch_account")
	Endpoint  string // Endpoint address the call was routed to
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op, endpoint string, err error) *NetworkError {
	return &NetworkError{Op: op, Endpoint: endpoint, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op, endpoint string, err error) *NetworkError {
	return &NetworkError{Op: op, Endpoint: endpoint, Err: err, Retriable: false}
}

// ValidationError rejects bad order input. Never retriable; the caller
// must fix the request. Validation failures never count against the
// submission circuit breaker.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return "validation error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// SequenceConflictError signals the ledger rejected a transaction for a
// stale sequence number. Retriable after the cached sequence is
// invalidated and refreshed.
type SequenceConflictError struct {
	AccountID string
	Err       error
}

func (e *SequenceConflictError) Error() string {
	return "sequence conflict [" + e.AccountID + "]: " + e.Err.Error()
}

func (e *SequenceConflictError) IsRetriable() bool {
	return true
}

func (e *SequenceConflictError) Unwrap() error {
	return e.Err
}

// BreakerOpenError is returned when a circuit breaker short-circuits an
// operation category. Retriable only after the recovery timeout; callers
// should back off rather than busy-retry.
type BreakerOpenError struct {
	Category string
}

func (e *BreakerOpenError) Error() string {
	return "circuit breaker open [" + e.Category + "]"
}

func (e *BreakerOpenError) IsRetriable() bool {
	return false
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

var (
	// ErrOfferNotFound is returned when the ledger has no record of an
	// offer. Not retriable; the monitor applies the missing-offer policy.
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOrderNotFound is returned for lookups of unknown order IDs.
	ErrOrderNotFound = errors.New("order not found")

	// ErrSignerUnavailable is returned when no signing capability is
	// configured. Never substituted with a fabricated key.
	ErrSignerUnavailable = errors.New("signing capability unavailable")

	// ErrFillAccounting is returned when a fill update would break
	// filled + remaining == requested. Programmer error, rejected.
	ErrFillAccounting = errors.New("fill accounting mismatch")

	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")
)
