package domain

import (
	"errors"
	"fmt"
)

var (
	ErrScheduleNotFound  = errors.New("schedule not found")
	ErrScheduleCancelled = errors.New("schedule is cancelled")
	ErrValidation        = errors.New("validation failed")
)

// ValidationError describes one rejected input field. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
