package tts

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("job not found")
	ErrNotReady = errors.New("job not ready")
	// ErrResultExpired means the job completed but its audio has since been evicted.
	ErrResultExpired = errors.New("result expired")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
