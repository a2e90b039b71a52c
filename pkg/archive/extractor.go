package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

// Extension is the recommended file extension for plugin packages. The
// extractor itself accepts any file name.
const Extension = ".axp"

// flagEncrypted is bit 0 of the zip general purpose flags.
const flagEncrypted = 0x1

// Limits bounds how much a single package may expand to.
type Limits struct {
	MaxEntries    int
	MaxTotalBytes int64
}

// DefaultLimits returns limits suitable for native plugin packages.
func DefaultLimits() Limits {
	return Limits{
		MaxEntries:    4096,
		MaxTotalBytes: 512 << 20,
	}
}

// Extractor unpacks plugin packages into directories
type Extractor struct {
	limits Limits
	log    *logrus.Logger
}

// NewExtractor creates a new extractor. Zero limits fall back to DefaultLimits.
func NewExtractor(limits Limits, log *logrus.Logger) *Extractor {
	if log == nil {
		log = logrus.New()
	}

	defaults := DefaultLimits()
	if limits.MaxEntries <= 0 {
		limits.MaxEntries = defaults.MaxEntries
	}
	if limits.MaxTotalBytes <= 0 {
		limits.MaxTotalBytes = defaults.MaxTotalBytes
	}

	return &Extractor{limits: limits, log: log}
}

// Limits returns the limits the extractor enforces.
func (e *Extractor) Limits() Limits {
	return e.limits
}

// Extract unpacks the package at archivePath into destDir and returns destDir.
// Each name in required must exist as a regular file after extraction. On any
// failure destDir is removed before returning.
func (e *Extractor) Extract(archivePath, destDir string, required ...string) (dir string, err error) {
	r, err := e.open(archivePath)
	if err != nil {
		return "", err
	}
	defer r.Close()

	if len(r.File) > e.limits.MaxEntries {
		return "", newError(archivePath, "", ErrTooLarge,
			fmt.Errorf("%d entries, limit %d", len(r.File), e.limits.MaxEntries))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", newError(archivePath, "", ErrUnreadable, fmt.Errorf("failed to create destination: %w", err))
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(destDir); rmErr != nil {
				e.log.Warnf("Failed to remove partial extraction %s: %v", destDir, rmErr)
			}
		}
	}()

	e.log.Debugf("Extracting %s into %s", archivePath, destDir)

	remaining := e.limits.MaxTotalBytes
	for _, f := range r.File {
		if err := checkEntry(archivePath, f); err != nil {
			return "", err
		}

		target := filepath.Join(destDir, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", newError(archivePath, f.Name, ErrUnreadable, err)
			}
			continue
		}

		if f.UncompressedSize64 > uint64(remaining) {
			return "", newError(archivePath, f.Name, ErrTooLarge,
				fmt.Errorf("total size limit %d bytes", e.limits.MaxTotalBytes))
		}

		written, err := extractFile(f, target, remaining)
		if err != nil {
			return "", classify(archivePath, f.Name, err)
		}
		remaining -= written
	}

	// Verify required entries were present
	for _, name := range required {
		info, err := os.Stat(filepath.Join(destDir, filepath.FromSlash(name)))
		if err != nil || !info.Mode().IsRegular() {
			return "", newError(archivePath, name, ErrMissingEntry, nil)
		}
	}

	return destDir, nil
}

// ReadFile returns the contents of a single entry without extracting the
// package. The entry size counts against MaxTotalBytes.
func (e *Extractor) ReadFile(archivePath, name string) ([]byte, error) {
	r, err := e.open(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	want := path.Clean(filepath.ToSlash(name))
	for _, f := range r.File {
		if path.Clean(f.Name) != want || f.FileInfo().IsDir() {
			continue
		}
		if err := checkEntry(archivePath, f); err != nil {
			return nil, err
		}
		if f.UncompressedSize64 > uint64(e.limits.MaxTotalBytes) {
			return nil, newError(archivePath, f.Name, ErrTooLarge, nil)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, classify(archivePath, f.Name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, e.limits.MaxTotalBytes+1))
		if err != nil {
			return nil, classify(archivePath, f.Name, err)
		}
		if int64(len(data)) > e.limits.MaxTotalBytes {
			return nil, newError(archivePath, f.Name, ErrTooLarge, nil)
		}
		return data, nil
	}

	return nil, newError(archivePath, name, ErrMissingEntry, nil)
}

func (e *Extractor) open(archivePath string) (*zip.ReadCloser, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, newError(archivePath, "", ErrUnreadable, err)
		}
		return nil, newError(archivePath, "", ErrCorrupt, err)
	}

	r.RegisterDecompressor(zstd.ZipMethodWinZip, zstd.ZipDecompressor())
	r.RegisterDecompressor(zstd.ZipMethodPKWare, zstd.ZipDecompressor())
	return r, nil
}

// checkEntry rejects entries that cannot be extracted safely.
func checkEntry(archivePath string, f *zip.File) error {
	if f.Flags&flagEncrypted != 0 {
		return newError(archivePath, f.Name, ErrEncrypted, nil)
	}

	name := strings.TrimSuffix(f.Name, "/")
	if name == "" || strings.Contains(name, `\`) || !filepath.IsLocal(filepath.FromSlash(name)) {
		return newError(archivePath, f.Name, ErrUnsafePath, nil)
	}

	mode := f.Mode()
	if mode&fs.ModeSymlink != 0 || (!mode.IsDir() && !mode.IsRegular()) {
		return newError(archivePath, f.Name, ErrUnsafePath, fmt.Errorf("entry mode %s", mode))
	}

	return nil
}

// extractFile writes a single entry, refusing to write more than limit bytes
// regardless of what the header claims.
func extractFile(f *zip.File, target string, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, err
	}

	rc, err := f.Open()
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	perm := f.Mode().Perm() | 0o600
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return written, err
	}
	if written > limit {
		return written, ErrTooLarge
	}

	return written, nil
}

// classify maps codec errors onto archive failure kinds.
func classify(archivePath, entry string, err error) error {
	switch {
	case errors.Is(err, ErrTooLarge):
		return newError(archivePath, entry, ErrTooLarge, nil)
	case errors.Is(err, zip.ErrAlgorithm):
		return newError(archivePath, entry, ErrUnsupported, err)
	case errors.Is(err, zip.ErrChecksum), errors.Is(err, zip.ErrFormat),
		errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, zstd.ErrMagicMismatch):
		return newError(archivePath, entry, ErrCorrupt, err)
	case errors.Is(err, fs.ErrPermission), errors.Is(err, fs.ErrExist):
		return newError(archivePath, entry, ErrUnreadable, err)
	default:
		return newError(archivePath, entry, ErrCorrupt, err)
	}
}
