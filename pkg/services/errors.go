package services

import (
	"errors"
	"fmt"

	"github.com/campusflow/campusflow/pkg/validation"
)

// Sentinel errors for callers to match with errors.Is.
var (
	ErrValidation = errors.New("definition failed validation")
	ErrConflict   = errors.New("conflicting state")
)

// ServiceError wraps a failure with the operation that produced it.
type ServiceError struct {
	Op      string
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// ValidationFailedError carries the full diagnostic list so the caller can
// show every problem at once.
type ValidationFailedError struct {
	DefinitionID string
	Problems     []validation.ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("definition %s failed validation with %d problem(s)", e.DefinitionID, len(e.Problems))
}

func (e *ValidationFailedError) Is(target error) bool {
	return target == ErrValidation
}

// IsValidationError reports whether the error stems from graph validation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsConflictError reports whether the error stems from conflicting state.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}
