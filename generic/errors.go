/*
errors.go - Centralized error types shared by every layer

PURPOSE:
  All error types in one place for consistency and discoverability.
  The engine, stores, and HTTP layer wrap these with context.

ERROR CATEGORIES:
  1. Input errors - malformed month/year, headcount < 1 (abort, no partial result)
  2. Lookup errors - a requested record does not exist
  3. Store errors - database-level failures

WHAT IS NOT AN ERROR:
  - Employee without a store: zero-valued result with StatusNoStore
  - No sales in the month: zero-valued result with StatusNoSales
  - Sale price outside every slab: skipped, reported as a diagnostic
  - No attach-rate interval for a date: treated as 0%

USAGE:
  if errors.Is(err, generic.ErrInvalidInput) {
      // 400
  }

SEE ALSO:
  - incentive/engine.go: Raises InvalidInputError
  - api/handlers.go: Maps errors to HTTP status codes
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned when a calculation request is structurally
	// wrong. No partial result accompanies it.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidPeriod is returned when a period is malformed (end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an append-only record with the same ID
	// already exists.
	ErrDuplicate = errors.New("duplicate record")

	// ErrStoreUnavailable is returned when the backing data store cannot be reached.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError names the offending parameter.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError identifies the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// DuplicateError identifies an append-only record that already exists.
type DuplicateError struct {
	Kind string
	ID   string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s already recorded: %s", e.Kind, e.ID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrDuplicate)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
