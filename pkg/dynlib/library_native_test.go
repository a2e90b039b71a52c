//go:build darwin || freebsd || linux || netbsd

package dynlib

import (
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var libcCandidates = []string{
	"/lib/x86_64-linux-gnu/libc.so.6",
	"/lib/aarch64-linux-gnu/libc.so.6",
	"/usr/lib/x86_64-linux-gnu/libc.so.6",
	"/usr/lib/aarch64-linux-gnu/libc.so.6",
	"/lib64/libc.so.6",
	"/usr/lib64/libc.so.6",
	"/usr/lib/libc.so.6",
	"/lib/libc.so.6",
	"/lib/libc.so.7",
	"/lib/ld-musl-x86_64.so.1",
	"/lib/ld-musl-aarch64.so.1",
}

// openLibc opens the system C library or skips the test.
func openLibc(t *testing.T, opts ...Option) *Library {
	t.Helper()

	for _, path := range libcCandidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		lib, err := Open(path, opts...)
		if err != nil {
			continue
		}
		t.Cleanup(func() { _ = lib.Close() })
		return lib
	}

	t.Skip("system C library not found")
	return nil
}

func TestLibrary_Call(t *testing.T) {
	lib := openLibc(t)

	pid, err := lib.Call("getpid")
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), int(int32(pid)))

	n := -42
	abs, err := lib.Call("abs", uintptr(n))
	require.NoError(t, err)
	assert.Equal(t, int32(42), int32(abs))
}

func TestLibrary_CallWithPointer(t *testing.T) {
	lib := openLibc(t)

	s, err := CString("hello, plugin")
	require.NoError(t, err)

	var pinner runtime.Pinner
	pinner.Pin(&s[0])
	defer pinner.Unpin()

	n, err := lib.Call("strlen", uintptr(unsafe.Pointer(&s[0])))
	require.NoError(t, err)
	assert.Equal(t, uintptr(len("hello, plugin")), n)
}

func TestLibrary_Resolve(t *testing.T) {
	lib := openLibc(t, WithCacheSize(2))

	first, err := lib.Resolve("getpid")
	require.NoError(t, err)
	assert.Equal(t, "getpid", first.Name())
	assert.NotZero(t, first.Addr())

	// Evict getpid from the two-entry cache, then resolve it again
	_, err = lib.Resolve("strlen")
	require.NoError(t, err)
	_, err = lib.Resolve("abs")
	require.NoError(t, err)

	second, err := lib.Resolve("getpid")
	require.NoError(t, err)
	assert.Equal(t, first.Addr(), second.Addr())
}

func TestLibrary_Has(t *testing.T) {
	lib := openLibc(t)

	assert.True(t, lib.Has("strlen"))
	assert.False(t, lib.Has("axle_definitely_not_exported"))
	assert.False(t, lib.Has("strlen\x00junk"))
	assert.False(t, lib.Has(""))
}

func TestLibrary_ResolveErrors(t *testing.T) {
	lib := openLibc(t)

	_, err := lib.Resolve("axle_definitely_not_exported")
	assert.ErrorIs(t, err, ErrSymbolNotFound)

	_, err = lib.Resolve("strlen\x00")
	assert.ErrorIs(t, err, ErrInvalidSymbolName)

	_, err = lib.Call("getpid", make([]uintptr, MaxArgs+1)...)
	assert.ErrorIs(t, err, ErrTooManyArgs)
}

func TestLibrary_Close(t *testing.T) {
	lib := openLibc(t)

	sym, err := lib.Resolve("getpid")
	require.NoError(t, err)

	require.NoError(t, lib.Close())
	require.NoError(t, lib.Close(), "second close is a no-op")

	_, err = sym.Call()
	assert.ErrorIs(t, err, ErrClosed)

	_, err = lib.Resolve("getpid")
	assert.ErrorIs(t, err, ErrClosed)

	assert.False(t, lib.Has("getpid"))
	assert.Equal(t, 0, lib.cache.Len())
}

func TestLibrary_CloseDuringCalls(t *testing.T) {
	lib := openLibc(t)

	sym, err := lib.Resolve("getpid")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := sym.Call(); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					return
				}
			}
		}()
	}

	require.NoError(t, lib.Close())
	wg.Wait()
}

func TestOpen_NotALibrary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libfake.so")
	require.NoError(t, os.WriteFile(path, []byte("this is not an ELF object"), 0o755))

	_, err := Open(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOpen)
}
