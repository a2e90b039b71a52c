package plugins

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"unsafe"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/archive/archivetest"
	"github.com/platinummonkey/axle/pkg/dynlib"
	"github.com/platinummonkey/axle/pkg/hookabi"
)

// fakeSymbol stands in for an exported native function
type fakeSymbol func(args ...uintptr) uintptr

// fakeModule is an in-process Module keyed by symbol name
type fakeModule struct {
	path     string
	symbols  map[string]fakeSymbol
	closeErr error

	mu     sync.Mutex
	calls  []string
	closed int
}

func (f *fakeModule) Path() string { return f.path }

func (f *fakeModule) Has(symbol string) bool {
	_, ok := f.symbols[symbol]
	return ok
}

func (f *fakeModule) Call(symbol string, args ...uintptr) (uintptr, error) {
	f.mu.Lock()
	if f.closed > 0 {
		f.mu.Unlock()
		return 0, dynlib.ErrClosed
	}
	f.calls = append(f.calls, symbol)
	f.mu.Unlock()

	fn, ok := f.symbols[symbol]
	if !ok {
		return 0, dynlib.ErrSymbolNotFound
	}
	return fn(args...), nil
}

func (f *fakeModule) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return f.closeErr
}

func (f *fakeModule) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeModule) CloseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeLoader hands out fake modules by object file base name and remembers
// every module it opened
type fakeLoader struct {
	mu      sync.Mutex
	modules map[string]func() *fakeModule
	opened  []*fakeModule
	openErr error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{modules: make(map[string]func() *fakeModule)}
}

// register installs a module factory for object files named objfile
func (l *fakeLoader) register(objfile string, symbols map[string]fakeSymbol) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[objfile] = func() *fakeModule {
		return &fakeModule{symbols: symbols}
	}
}

func (l *fakeLoader) registerModule(objfile string, factory func() *fakeModule) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.modules[objfile] = factory
}

func (l *fakeLoader) open(path string) (Module, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.openErr != nil {
		return nil, l.openErr
	}
	factory, ok := l.modules[filepath.Base(path)]
	if !ok {
		return nil, errors.New("not a shared object")
	}
	mod := factory()
	mod.path = path
	l.opened = append(l.opened, mod)
	return mod, nil
}

func (l *fakeLoader) last() *fakeModule {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.opened) == 0 {
		return nil
	}
	return l.opened[len(l.opened)-1]
}

func (l *fakeLoader) all() []*fakeModule {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeModule(nil), l.opened...)
}

// returns yields a symbol that always returns code
func returns(code int32) fakeSymbol {
	return func(...uintptr) uintptr { return uintptr(uint32(code)) }
}

// echo is a hook that copies its input to its output
func echo(args ...uintptr) uintptr {
	p := payloadAt(args[0])
	in := unsafe.Slice(p.Data, p.Len)
	out := unsafe.Slice(p.Out, p.OutCap)
	p.OutLen = uint64(copy(out, in))
	return 0
}

// payloadAt recovers the frame a fake hook was called with. The address came
// from Frame.Pointer and the frame is pinned for the call, so the conversion
// is exempt from checkptr.
//
//go:nocheckptr
func payloadAt(addr uintptr) *hookabi.Payload {
	return (*hookabi.Payload)(unsafe.Pointer(addr)) //nolint:govet
}

// standardSymbols exports an entry point, a destructor and an echo hook
func standardSymbols() map[string]fakeSymbol {
	return map[string]fakeSymbol{
		DefaultEntryPoint: returns(0),
		DefaultDestructor: returns(0),
		"echo":            echo,
		"fail":            returns(7),
	}
}

// writePackage writes a package holding a descriptor and a dummy object file
func writePackage(t *testing.T, dir, file, descriptorToml, objfile string) string {
	t.Helper()
	files := map[string][]byte{
		"metadata.toml": []byte(descriptorToml),
	}
	if objfile != "" {
		files[objfile] = []byte("\x7fELF fake")
	}
	return archivetest.Write(t, filepath.Join(dir, file), files)
}

// writeSimplePackage writes a package named name whose object is name.so
func writeSimplePackage(t *testing.T, dir, name, version string) string {
	t.Helper()
	return writePackage(t, dir, name+"-"+version+".axp",
		string(archivetest.Descriptor(name, version, name+".so")), name+".so")
}

type harness struct {
	mgr     *Manager
	loader  *fakeLoader
	logs    *test.Hook
	pkgDir  string
	workDir string
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	h := &harness{
		loader:  newFakeLoader(),
		logs:    hook,
		pkgDir:  t.TempDir(),
		workDir: t.TempDir(),
	}

	opts := Options{
		WorkDir: h.workDir,
		Logger:  logger,
		Opener:  h.loader.open,
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	mgr, err := NewManager(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	h.mgr = mgr
	return h
}

// warnings returns every logged message at warn level
func (h *harness) warnings() []string {
	var msgs []string
	for _, e := range h.logs.AllEntries() {
		if e.Level == logrus.WarnLevel {
			msgs = append(msgs, e.Message)
		}
	}
	return msgs
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	return entries
}
