package database

import (
	"strings"

	"github.com/lib/pq"

	"github.com/curamed/curamed-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	// Serialization failure (40001) / deadlock detected (40P01)
	case "40001", "40P01":
		return errors.ConcurrencyConflict("transaction conflicted with a concurrent update")

	default:
		return nil
	}
}

// IsRetryable reports whether the error is a commit-time race that is worth
// retrying with a fresh plan.
func IsRetryable(err error) bool {
	if errors.Is(err, errors.ErrConcurrencyConflict) {
		return true
	}
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InvariantViolation("batch quantity must not become negative")

	case strings.Contains(constraint, "reorder_level_non_negative"):
		return errors.Validation(map[string]string{
			"reorder_level": "must not be negative",
		})

	case strings.Contains(constraint, "status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: PENDING, DISPENSED",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "medicines_code"):
		return "a medicine with this code already exists"
	case strings.Contains(constraint, "batch_no"):
		return "a batch with this number already exists for this medicine"
	case strings.Contains(constraint, "prescription_no"):
		return "a prescription with this number already exists"
	default:
		return "a record with these values already exists"
	}
}
