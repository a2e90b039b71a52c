package archive

import (
	"errors"
	"fmt"
)

// Archive failure kinds. Every error returned by this package matches ErrArchive
// and exactly one of the more specific kinds.
var (
	ErrArchive      = errors.New("archive error")
	ErrUnreadable   = errors.New("package cannot be read")
	ErrCorrupt      = errors.New("package is corrupt")
	ErrEncrypted    = errors.New("encrypted entries are not supported")
	ErrUnsupported  = errors.New("unsupported compression method")
	ErrUnsafePath   = errors.New("unsafe entry path")
	ErrTooLarge     = errors.New("package exceeds size limits")
	ErrMissingEntry = errors.New("required entry missing")
)

// Error describes an extraction failure.
type Error struct {
	Path  string // archive path
	Entry string // offending entry, if any
	Kind  error
	Err   error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Path, e.Kind)
	if e.Entry != "" {
		msg = fmt.Sprintf("%s: entry %q: %v", e.Path, e.Entry, e.Kind)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{ErrArchive, e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(path, entry string, kind, err error) *Error {
	return &Error{Path: path, Entry: entry, Kind: kind, Err: err}
}
