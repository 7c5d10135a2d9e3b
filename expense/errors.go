/*
errors.go - Centralized error types for the approval engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers classify failures with errors.Is against the sentinels; the
  structured types carry the details for messages.

ERROR CATEGORIES:
  1. Validation errors    - Malformed submission input, no side effects
  2. Authorization errors - Actor does not hold the pending step
  3. State errors         - Expense is not actionable (not Pending / resolved)
  4. Dependency errors    - Currency conversion or directory lookup failed
  5. Store errors         - Missing records, concurrent modification

RETRIES:
  Nothing in the engine retries. IsRetryable tells the caller which
  failures may succeed on a second attempt.

SEE ALSO:
  - lifecycle.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package expense

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned when submission input is malformed.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized is returned when the actor does not hold the pending step.
	ErrUnauthorized = errors.New("unauthorized actor")

	// ErrNotActionable is returned when an action targets an expense that is
	// not Pending or has no current step.
	ErrNotActionable = errors.New("expense not actionable")

	// ErrDependency is returned when a collaborator (currency, directory) fails.
	ErrDependency = errors.New("dependency failure")

	// ErrExpenseNotFound is returned when a referenced expense doesn't exist.
	ErrExpenseNotFound = errors.New("expense not found")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrConcurrentModification is returned when optimistic versioning detects a conflict.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidChain is returned when a built chain breaks step numbering.
	ErrInvalidChain = errors.New("invalid approver chain")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// FieldError describes a validation failure for one input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every field that failed validation.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("validation: %s: %s", e.Errors[0].Field, e.Errors[0].Message)
	}
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return fmt.Sprintf("validation: %d errors (%s)", len(e.Errors), strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// AuthorizationError reports an actor acting on a step they do not hold.
// Cause is reachable through errors.Is but kept out of the message.
type AuthorizationError struct {
	ExpenseID string
	ActorID   string
	Step      *int
	Cause     error
}

func (e *AuthorizationError) Error() string {
	msg := fmt.Sprintf("unauthorized actor %s for expense %s", e.ActorID, e.ExpenseID)
	if e.Step != nil {
		msg += fmt.Sprintf(" (current step %d)", *e.Step)
	}
	return msg
}

func (e *AuthorizationError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrUnauthorized, e.Cause}
	}
	return []error{ErrUnauthorized}
}

// StateError reports an action attempted on an expense that cannot take it.
type StateError struct {
	ExpenseID string
	Status    Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("expense %s not actionable (status: %s)", e.ExpenseID, e.Status)
}

func (e *StateError) Unwrap() error { return ErrNotActionable }

// DependencyError wraps a collaborator failure.
type DependencyError struct {
	Dependency string // "currency", "directory"
	Op         string
	Err        error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Dependency, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() []error { return []error{ErrDependency, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrDependency)
}

// IsClientError returns true if the error is due to invalid client input or action.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNotActionable)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrExpenseNotFound) || errors.Is(err, ErrUserNotFound)
}
