/*
errors.go - Centralized error types for the farm ledger core

PURPOSE:
  All error types in one place. Stores wrap database failures with context
  via fmt.Errorf %w; engines surface these sentinels so callers can classify
  with errors.Is.

ERROR CATEGORIES:
  1. Input errors   - bad ranges, non-positive rates, malformed recurrence
  2. Conflict errors - a closing already exists for a range
  3. Benign misses   - absent or foreign-tenant rows (bool/empty, not errors,
                       on complete/postpone; ErrNotFound where a row is
                       supposed to exist)

SEE ALSO:
  - closing.go: raises DuplicateClosingError
  - rates.go: raises InvalidRateError
*/
package finca

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for malformed caller input: bad task
	// kinds, non-positive rates, malformed recurrence.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidRange is returned when a date range ends before it starts.
	ErrInvalidRange = errors.New("invalid range: end before start")

	// ErrDuplicateClosing is returned when a closing already exists for a
	// (tenant, range) and overwrite was not requested. This is a safety
	// rail against accidental double-billing; recover by retrying with
	// overwrite enabled.
	ErrDuplicateClosing = errors.New("closing already exists for range")

	// ErrAlreadyExists is returned on per-tenant uniqueness violations
	// outside closings (e.g. registering the same worker twice).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound is returned when a row that is supposed to exist is
	// absent or owned by another tenant.
	ErrNotFound = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateClosingError reports an existing closing for the requested range.
// The message names the overwrite option because that is the documented
// recovery path.
type DuplicateClosingError struct {
	Tenant     Tenant
	Range      DateRange
	ExistingID int64
}

func (e *DuplicateClosingError) Error() string {
	return fmt.Sprintf("a closing already exists for %s..%s; set overwrite to recreate it",
		e.Range.From, e.Range.To)
}

func (e *DuplicateClosingError) Unwrap() error { return ErrDuplicateClosing }

// InvalidRateError reports a rejected rate update. DayRate must be positive
// and OvertimeRate non-negative.
type InvalidRateError struct {
	DayRate      decimal.Decimal
	OvertimeRate decimal.Decimal
}

func (e *InvalidRateError) Error() string {
	return fmt.Sprintf("invalid rates: day_rate=%s overtime_rate=%s (day rate must be > 0, overtime rate >= 0)",
		e.DayRate, e.OvertimeRate)
}

func (e *InvalidRateError) Unwrap() error { return ErrInvalidInput }

// InvalidRecurrenceError reports a rejected recurrence policy.
type InvalidRecurrenceError struct {
	EveryDays        int
	TotalOccurrences *int
}

func (e *InvalidRecurrenceError) Error() string {
	if e.TotalOccurrences != nil {
		return fmt.Sprintf("invalid recurrence: every_days=%d total_occurrences=%d", e.EveryDays, *e.TotalOccurrences)
	}
	return fmt.Sprintf("invalid recurrence: every_days=%d", e.EveryDays)
}

func (e *InvalidRecurrenceError) Unwrap() error { return ErrInvalidInput }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// or a conflict the caller can resolve. These are never retried.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidRange) ||
		errors.Is(err, ErrDuplicateClosing) ||
		errors.Is(err, ErrAlreadyExists)
}

// IsNotFound returns true if the error indicates a missing row.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
