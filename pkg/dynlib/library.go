package dynlib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MaxArgs is the maximum number of arguments a native call accepts.
const MaxArgs = 15

// DefaultCacheSize is the number of resolved symbols kept per library.
const DefaultCacheSize = 128

// Library is an open native shared library
type Library struct {
	path string

	mu     sync.RWMutex
	handle uintptr
	closed bool
	cache  *lru.Cache[string, uintptr]
}

type options struct {
	cacheSize int
}

// Option configures Open
type Option func(*options)

// WithCacheSize sets the number of resolved symbols cached per library.
// Values below one fall back to DefaultCacheSize.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

// Open maps the library at path, resolving all of its symbols immediately
// and keeping them local to the returned handle. path must be absolute so the
// platform loader never searches its library path.
func Open(path string, opts ...Option) (*Library, error) {
	o := options{cacheSize: DefaultCacheSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize < 1 {
		o.cacheSize = DefaultCacheSize
	}

	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: %s: path must be absolute", ErrOpen, path)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	cache, err := lru.New[string, uintptr](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}

	handle, err := dlopen(path)
	if err != nil {
		return nil, err
	}

	return &Library{
		path:   path,
		handle: handle,
		cache:  cache,
	}, nil
}

// Path returns the path the library was opened from
func (l *Library) Path() string {
	return l.path
}

// Resolve looks up an exported symbol by its exact name
func (l *Library) Resolve(name string) (*Symbol, error) {
	cname, err := CString(name)
	if err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, fmt.Errorf("%w: %s", ErrClosed, l.path)
	}

	if addr, ok := l.cache.Get(name); ok {
		return &Symbol{lib: l, name: name, addr: addr}, nil
	}

	addr, err := dlsym(l.handle, string(cname))
	if err != nil {
		return nil, fmt.Errorf("%w: %q in %s: %w", ErrSymbolNotFound, name, l.path, err)
	}
	if addr == 0 {
		return nil, fmt.Errorf("%w: %q in %s: resolved to NULL", ErrSymbolNotFound, name, l.path)
	}

	l.cache.Add(name, addr)
	return &Symbol{lib: l, name: name, addr: addr}, nil
}

// Has reports whether the library exports name
func (l *Library) Has(name string) bool {
	_, err := l.Resolve(name)
	return err == nil
}

// Call resolves name and calls it with args
func (l *Library) Call(name string, args ...uintptr) (uintptr, error) {
	sym, err := l.Resolve(name)
	if err != nil {
		return 0, err
	}
	return sym.Call(args...)
}

// Close releases the native handle. It waits for in-flight calls, purges the
// symbol cache and is safe to call more than once.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.cache.Purge()

	handle := l.handle
	l.handle = 0
	if err := dlclose(handle); err != nil {
		return fmt.Errorf("failed to close %s: %w", l.path, err)
	}
	return nil
}

// Symbol is a resolved function in an open Library
type Symbol struct {
	lib  *Library
	name string
	addr uintptr
}

// Name returns the symbol name
func (s *Symbol) Name() string {
	return s.name
}

// Addr returns the raw symbol address. It is only meaningful while the
// library is open.
func (s *Symbol) Addr() uintptr {
	return s.addr
}

// Call invokes the symbol with integer or pointer arguments and returns the
// first return register. Any Go memory referenced by args must stay pinned
// until Call returns.
func (s *Symbol) Call(args ...uintptr) (uintptr, error) {
	if len(args) > MaxArgs {
		return 0, fmt.Errorf("%w: %d (max %d)", ErrTooManyArgs, len(args), MaxArgs)
	}

	s.lib.mu.RLock()
	defer s.lib.mu.RUnlock()

	if s.lib.closed {
		return 0, fmt.Errorf("%w: %s", ErrClosed, s.lib.path)
	}

	return call(s.addr, args...), nil
}

// CString returns s as a NUL-terminated byte slice. Empty strings and
// strings containing NUL are rejected with ErrInvalidSymbolName.
func CString(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidSymbolName)
	}
	if i := strings.IndexByte(s, 0); i >= 0 {
		return nil, fmt.Errorf("%w: NUL byte at offset %d in %q", ErrInvalidSymbolName, i, s)
	}

	b := make([]byte, len(s)+1)
	copy(b, s)
	return b, nil
}
