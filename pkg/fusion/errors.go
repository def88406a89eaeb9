package fusion

import (
	"errors"
	"fmt"
)

// ErrValidation is wrapped by every ValidationError so callers can test for
// rejected input with errors.Is.
var ErrValidation = errors.New("invalid fusion input")

// ValidationError reports an input that cannot be fused. It is always
// returned before any fusion work starts.
type ValidationError struct {
	// Field names the offending parameter, e.g. "priors" or "observers".
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
