package stockledger

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidArgument    = errors.New("stockledger: invalid argument")
	ErrInvariantViolation = errors.New("stockledger: stock invariant violated")

	// Stock errors
	ErrStockNotFound     = errors.New("stockledger: stock record not found")
	ErrStockExists       = errors.New("stockledger: stock record already exists")
	ErrInactiveStock     = errors.New("stockledger: stock record is inactive")
	ErrInsufficientStock = errors.New("stockledger: insufficient stock")
	ErrInvalidAdjustment = errors.New("stockledger: adjustment would break reserved quantity")

	// Reservation errors
	ErrReservationNotFound = errors.New("stockledger: reservation not found")
	ErrReservationMismatch = errors.New("stockledger: reservation does not match deduction")

	// Store errors
	ErrStoreNotReady     = errors.New("stockledger: store not ready")
	ErrStoreClosed       = errors.New("stockledger: store is closed")
	ErrTransactionFailed = errors.New("stockledger: transaction failed")
	ErrMigrationFailed   = errors.New("stockledger: migration failed")
)

// InsufficientStockError reports a reservation or deduction that asked for
// more than is available. It unwraps to ErrInsufficientStock.
type InsufficientStockError struct {
	SKUID     string
	Requested int64
	Available int64
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("stockledger: insufficient stock for %s: requested %d, available %d",
		e.SKUID, e.Requested, e.Available)
}

func (e InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ReservationMismatchError reports a Deduct line whose reservation exists but
// cannot back the deduction. It unwraps to ErrReservationMismatch.
type ReservationMismatchError struct {
	ReservationID string
	SKUID         string
	Reason        string
}

func (e ReservationMismatchError) Error() string {
	return fmt.Sprintf("stockledger: reservation %s does not match deduction for %s: %s",
		e.ReservationID, e.SKUID, e.Reason)
}

func (e ReservationMismatchError) Unwrap() error { return ErrReservationMismatch }

// InvalidAdjustmentError reports a negative adjustment that would push total
// below the reserved quantity. It unwraps to ErrInvalidAdjustment.
type InvalidAdjustmentError struct {
	SKUID    string
	Delta    int64
	Total    int64
	Reserved int64
}

func (e InvalidAdjustmentError) Error() string {
	return fmt.Sprintf("stockledger: adjustment of %+d on %s would leave total %d below reserved %d",
		e.Delta, e.SKUID, e.Total+e.Delta, e.Reserved)
}

func (e InvalidAdjustmentError) Unwrap() error { return ErrInvalidAdjustment }

// InvariantViolationError reports a stock record whose reserved quantity no
// longer fits within its total. Seeing one means a bug or corrupted storage,
// never a caller mistake. It unwraps to ErrInvariantViolation.
type InvariantViolationError struct {
	SKUID    string
	Total    int64
	Reserved int64
}

func (e InvariantViolationError) Error() string {
	return fmt.Sprintf("stockledger: invariant violated for %s: reserved %d outside [0, %d]",
		e.SKUID, e.Reserved, e.Total)
}

func (e InvariantViolationError) Unwrap() error { return ErrInvariantViolation }

// ValidationError represents a validation failure with details.
// It unwraps to ErrInvalidArgument.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("stockledger: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidArgument }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "stockledger: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("stockledger: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStockNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsConflict returns true if the error reports a state conflict: the request
// was well formed but the current quantities or reservation state refused it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrReservationMismatch) ||
		errors.Is(err, ErrInvalidAdjustment) ||
		errors.Is(err, ErrStockExists) ||
		errors.Is(err, ErrInactiveStock)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrTransactionFailed)
}
