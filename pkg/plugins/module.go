package plugins

import (
	"github.com/platinummonkey/axle/pkg/dynlib"
)

// Module is an open native module. *dynlib.Library implements it.
type Module interface {
	Path() string
	Has(symbol string) bool
	Call(symbol string, args ...uintptr) (uintptr, error)
	Close() error
}

// Opener opens the native module at an absolute path
type Opener func(path string) (Module, error)

// DynlibOpener opens modules with dynlib, caching up to cacheSize resolved
// symbols per module
func DynlibOpener(cacheSize int) Opener {
	return func(path string) (Module, error) {
		lib, err := dynlib.Open(path, dynlib.WithCacheSize(cacheSize))
		if err != nil {
			return nil, err
		}
		return lib, nil
	}
}
