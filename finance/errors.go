/*
errors.go - Centralized error kinds for the core

PURPOSE:
  All error kinds in one place for consistency and discoverability. The
  ledger, balance, and cube packages return these; callers classify them
  with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Validation errors - tenant scope, uniqueness, references, bulk rules
  2. Consistency errors - cube-vs-ledger disagreement
  3. Storage errors - propagated unchanged, wrapped with context only

PROPAGATION POLICY:
  Validation and semantic errors are surfaced unchanged. Storage failures
  are propagated. A missing cross-tenant reference is reported as not-found,
  never as "exists elsewhere" - the distinction would leak tenant data.

USAGE:
    if errors.Is(err, finance.ErrNonUniformBulk) {
        // fall back to per-row updates
    }
*/
package finance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrTenantRequired is returned when a storage call carries no tenant.
	// The adapter refuses such queries at the boundary.
	ErrTenantRequired = errors.New("tenant id required")

	// ErrNotFound is returned when a referenced account, category, or
	// transaction is absent within the tenant. References that exist in
	// another tenant report the same error.
	ErrNotFound = errors.New("not found")

	// ErrUniqueViolation is returned on account/category name collisions.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrConflict is returned when deleting an account or category that
	// postings still reference.
	ErrConflict = errors.New("referenced by existing transactions")

	// ErrFutureReconcileDate is returned when a reconciliation date lies
	// after today (UTC).
	ErrFutureReconcileDate = errors.New("reconcile date is in the future")

	// ErrNonUniformBulk is returned when a bulk update's old value is not
	// uniform across the affected set. The caller retries per-row.
	ErrNonUniformBulk = errors.New("bulk update old value is not uniform")

	// ErrUnsupportedBulkField is returned when a bulk update attempts to
	// change the posting date, or changes more than one field at once.
	ErrUnsupportedBulkField = errors.New("unsupported bulk update field")

	// ErrCubeInconsistent is produced only by consistency validation.
	// Repair is a separate, explicit reconcile call.
	ErrCubeInconsistent = errors.New("cube totals disagree with ledger")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which entity was missing.
type NotFoundError struct {
	Entity string // "account", "category", "transaction"
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s: not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// UniqueViolationError describes a name collision.
type UniqueViolationError struct {
	Entity string
	Name   string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("%s name %q already exists", e.Entity, e.Name)
}

func (e *UniqueViolationError) Unwrap() error { return ErrUniqueViolation }

// ConflictError describes a delete blocked by referencing postings.
type ConflictError struct {
	Entity     string
	ID         string
	References int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s is referenced by %d transaction(s)", e.Entity, e.ID, e.References)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NonUniformBulkError reports the distinct old values that blocked the
// bulk-metadata fast path.
type NonUniformBulkError struct {
	Field  ChangedField
	Values []string
}

func (e *NonUniformBulkError) Error() string {
	return fmt.Sprintf("bulk update of %s: old values not uniform (%d distinct)", e.Field, len(e.Values))
}

func (e *NonUniformBulkError) Unwrap() error { return ErrNonUniformBulk }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing entity.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsClientError reports whether the error is due to invalid input rather
// than a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUniqueViolation) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrFutureReconcileDate) ||
		errors.Is(err, ErrNonUniformBulk) ||
		errors.Is(err, ErrUnsupportedBulkField)
}
