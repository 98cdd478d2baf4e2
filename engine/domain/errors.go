package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by the pipeline stages and their callers.
var (
	ErrInvalidQuery       = errors.New("invalid query")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrQueryTooShort      = errors.New("query too short")
	ErrQueryInjection     = errors.New("query contains suspicious content")
	ErrQueryProfanity     = errors.New("query contains profanity")
	ErrUnknownIntent      = errors.New("unknown intent label")
	ErrMalformedOutput    = errors.New("malformed backend output")
	ErrScoreOutOfRange    = errors.New("score outside [0,1]")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrNoContext          = errors.New("no candidate context")
)

// ValidationError wraps a sentinel with the offending field.
type ValidationError struct {
	Field   string
	Value   string
	Wrapped error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s (value=%q)", e.Wrapped, e.Field, e.Value)
}

func (e *ValidationError) Unwrap() error { return e.Wrapped }

// NewValidationError creates a ValidationError.
func NewValidationError(field, value string, wrapped error) *ValidationError {
	return &ValidationError{Field: field, Value: value, Wrapped: wrapped}
}

// StageError reports which pipeline stage failed. The Orchestrator returns
// every fatal failure wrapped in one.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Malformed wraps a decoding failure as ErrMalformedOutput.
func Malformed(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrMalformedOutput, what)
	}
	return fmt.Errorf("%w: %s: %v", ErrMalformedOutput, what, err)
}
