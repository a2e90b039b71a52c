// Package dynlib opens native shared libraries and calls their exported C
// symbols without cgo.
//
// # Overview
//
// A Library owns exactly one native handle from Open until Close. Resolved
// symbol addresses are cached in a bounded LRU cache that is purged under the
// same lock that releases the handle, so a cached address never outlives the
// mapping it points into.
//
// A Symbol keeps a reference to its Library. Symbol.Call holds the library's
// read lock for the duration of the native call and fails with ErrClosed once
// the library has been closed; Close waits for in-flight calls to return.
//
// # Usage Example
//
//	lib, err := dynlib.Open("/opt/plugins/libhello.so")
//	if err != nil {
//	    return err
//	}
//	defer lib.Close()
//
//	if lib.Has("hello_init") {
//	    rc, err := lib.Call("hello_init")
//	    ...
//	}
//
// Native calls use the platform C calling convention with at most MaxArgs
// integer or pointer arguments. Only the first return register is reported.
//
// # Related Packages
//
//   - pkg/hookabi: the payload frame passed to plugin hooks
//   - pkg/plugins: plugin lifecycle built on top of Library
package dynlib
