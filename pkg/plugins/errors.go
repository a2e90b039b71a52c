package plugins

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by a Manager is an *Error whose Kind is
// one of these; match them with errors.Is.
var (
	// ErrArchive indicates an unreadable, corrupt or unsafe package
	ErrArchive = errors.New("invalid plugin package")

	// ErrMetadata indicates a missing, malformed or invalid descriptor
	ErrMetadata = errors.New("invalid plugin metadata")

	// ErrModuleOpen indicates the object file is missing, not a native
	// module or has unresolved dependencies
	ErrModuleOpen = errors.New("failed to open plugin module")

	// ErrSymbolNotFound indicates an absent entry point or hook
	ErrSymbolNotFound = errors.New("symbol not found")

	// ErrInvocation indicates native code reported failure
	ErrInvocation = errors.New("plugin invocation failed")

	// ErrState indicates an operation incompatible with the current lifecycle
	// state, or a Ref used after its Manager was closed
	ErrState = errors.New("invalid plugin state")

	// ErrIdentityCollision indicates a plugin with the same name is loaded
	ErrIdentityCollision = errors.New("plugin name already registered")

	// ErrNotFound indicates no plugin is registered under the given name
	ErrNotFound = errors.New("plugin not found")

	// ErrSuperuser is returned by NewManager when DenyRoot is set and the
	// process runs with an effective uid of 0
	ErrSuperuser = errors.New("refusing to load plugins as superuser")
)

// Error describes a failed Manager operation
type Error struct {
	Op     string // load, unload, invoke, get, close
	Plugin string // plugin name or archive path when the name is unknown
	Kind   error
	Err    error

	// Result is set for hook invocations that ran but reported failure
	Result *HookResult
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Plugin != "" {
		msg += " " + e.Plugin
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, plugin string, kind, err error) *Error {
	return &Error{Op: op, Plugin: plugin, Kind: kind, Err: err}
}

func errorf(op, plugin string, kind error, format string, args ...any) *Error {
	return newError(op, plugin, kind, fmt.Errorf(format, args...))
}

// kindOf returns the Kind of a Manager error, or nil for other errors
func kindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
