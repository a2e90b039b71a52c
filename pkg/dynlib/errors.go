package dynlib

import "errors"

var (
	// ErrOpen is returned when a library cannot be mapped: missing file,
	// wrong format or unresolved dependencies.
	ErrOpen = errors.New("failed to open library")

	// ErrSymbolNotFound is returned when a symbol is not exported by the library
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrInvalidSymbolName is returned for empty names and names with NUL bytes
	ErrInvalidSymbolName = errors.New("invalid symbol name")

	// ErrClosed is returned by operations on a closed library
	ErrClosed = errors.New("library is closed")

	// ErrTooManyArgs is returned when a call exceeds MaxArgs
	ErrTooManyArgs = errors.New("too many arguments")

	// ErrUnsupportedPlatform is returned by Open where dynamic loading is not available
	ErrUnsupportedPlatform = errors.New("dynamic loading is not supported on this platform")
)
