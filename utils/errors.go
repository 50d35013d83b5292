package utils

import (
	"github.com/pkg/errors"
)

// ErrInvariantViolation is the cause of every error produced by a caller contract breach, such as
// a transform or parameter vector of the wrong shape. These errors abort a calibration run.
var ErrInvariantViolation = errors.New("invariant violation")

// NewShapeMismatchError is used when an array or matrix does not have the expected dimensions.
func NewShapeMismatchError(what string, expected, actual interface{}) error {
	return errors.Wrapf(ErrInvariantViolation, "%s: expected shape %v but got %v", what, expected, actual)
}

// NewInvariantError wraps ErrInvariantViolation with a formatted message.
func NewInvariantError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvariantViolation, format, args...)
}

// IsInvariantViolation reports whether err was caused by a caller contract breach.
func IsInvariantViolation(err error) bool {
	return errors.Is(err, ErrInvariantViolation)
}
