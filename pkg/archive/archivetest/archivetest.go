// Package archivetest builds plugin packages for tests.
package archivetest

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

// Entry is a single file written into a test package.
type Entry struct {
	Name   string
	Data   []byte
	Method uint16 // zip.Store, zip.Deflate or zstd.ZipMethodWinZip
	Mode   os.FileMode
	// Raw writes Data verbatim with the given Method, so tests can produce
	// entries the reader cannot decompress.
	Raw       bool
	Encrypted bool
}

// Descriptor renders a metadata.toml document with the required fields.
func Descriptor(name, version, objfile string) []byte {
	return []byte("[metadata]\n" +
		"name = \"" + name + "\"\n" +
		"version = \"" + version + "\"\n" +
		"objfile = \"" + objfile + "\"\n")
}

// Write creates a zip package at path from a name -> contents map, deflating
// every entry. Entries are written in sorted order.
func Write(t testing.TB, path string, files map[string][]byte) string {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]Entry, 0, len(names))
	for _, name := range names {
		entries = append(entries, Entry{Name: name, Data: files[name], Method: zip.Deflate})
	}
	return WriteEntries(t, path, entries)
}

// WriteEntries creates a zip package at path with full control over each entry.
func WriteEntries(t testing.TB, path string, entries []Entry) string {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := zip.NewWriter(f)
	w.RegisterCompressor(zstd.ZipMethodWinZip, zstd.ZipCompressor())

	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: e.Method}
		if e.Mode != 0 {
			hdr.SetMode(e.Mode)
		}
		if e.Encrypted {
			hdr.Flags |= 0x1
		}

		var out io.Writer
		if e.Raw {
			hdr.CompressedSize64 = uint64(len(e.Data))
			hdr.UncompressedSize64 = uint64(len(e.Data))
			out, err = w.CreateRaw(hdr)
		} else {
			out, err = w.CreateHeader(hdr)
		}
		require.NoError(t, err)

		if len(e.Data) > 0 {
			_, err = out.Write(e.Data)
			require.NoError(t, err)
		}
	}

	require.NoError(t, w.Close())
	return path
}
