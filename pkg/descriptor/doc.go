// Package descriptor parses and validates plugin package descriptors.
//
// Every package carries a metadata.toml file with a [metadata] table:
//
//	[metadata]
//	name = "hello"
//	version = "1.0.0"
//	objfile = "lib/libhello.so"
//	description = "Says hello"   # optional
//	entrypoint = "hello_init"    # optional, overrides the host default
//	destructor = "hello_exit"    # optional, overrides the host default
//	format = 2                   # optional, 2 allows plugins without an entry point
//	threading = "single"         # optional, "shared" (default) or "single"
//
// Required fields must be present and non-empty. Validation reports every
// problem found, not only the first one.
package descriptor
