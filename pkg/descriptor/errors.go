package descriptor

import (
	"errors"
	"fmt"
	"strings"
)

// Descriptor failure kinds. Every error returned by Load and Parse matches
// ErrMetadata.
var (
	ErrMetadata     = errors.New("invalid plugin metadata")
	ErrNotFound     = errors.New("descriptor not found")
	ErrUnreadable   = errors.New("descriptor cannot be read")
	ErrMalformed    = errors.New("malformed descriptor")
	ErrMissingField = errors.New("missing required field")
	ErrEmptyField   = errors.New("empty required field")
	ErrInvalidField = errors.New("invalid field")
)

// ValidationError represents a single descriptor validation problem
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Kind    error  `json:"-"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

func (v ValidationError) Unwrap() error {
	return v.Kind
}

// Error is returned when a descriptor cannot be loaded or fails validation.
type Error struct {
	Path     string
	Err      error // ErrNotFound, ErrUnreadable or ErrMalformed; nil for validation failures
	Problems []ValidationError
}

func (e *Error) Error() string {
	source := e.Path
	if source == "" {
		source = "<descriptor>"
	}

	if e.Err != nil {
		return fmt.Sprintf("%s: %v", source, e.Err)
	}

	msgs := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		msgs = append(msgs, p.Error())
	}
	return fmt.Sprintf("%s: %v: %s", source, ErrMetadata, strings.Join(msgs, "; "))
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrMetadata}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	for _, p := range e.Problems {
		errs = append(errs, p)
	}
	return errs
}
