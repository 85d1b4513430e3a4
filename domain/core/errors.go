package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	ErrNotFound         = errors.New("resource not found")
	ErrInsufficientData = errors.New("insufficient data for analysis")
	ErrLengthMismatch   = errors.New("length mismatch")
)

// NewLengthMismatchError reports two parallel inputs that must have equal length
func NewLengthMismatchError(what string, a, b int) error {
	return fmt.Errorf("%w: %s (%d vs %d)", ErrLengthMismatch, what, a, b)
}

// IsNotFoundError reports whether err wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
