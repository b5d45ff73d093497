// Package planetreq holds what the Planet request builders share.
package planetreq

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed builder input. It is local and never retryable.
type ValidationError struct {
	Op     string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Field, e.Reason)
}

func Invalid(op, field, format string, args ...any) *ValidationError {
	return &ValidationError{Op: op, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
