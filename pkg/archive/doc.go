// Package archive unpacks plugin packages.
//
// # Overview
//
// A package is a zip archive holding a metadata.toml descriptor and the native
// object file it names. The Extractor unpacks it into a working directory and
// reports failures as typed errors; it never looks at the descriptor contents.
//
// Entries may be stored, deflated or zstd-compressed (method 93). Encrypted
// entries, unknown compression methods, symlinks and paths escaping the
// destination directory are rejected.
//
// # Usage Example
//
//	ex := archive.NewExtractor(archive.DefaultLimits(), logger)
//	dir, err := ex.Extract("/plugins/hello.axp", workDir, descriptor.FileName)
//	if err != nil {
//		if errors.Is(err, archive.ErrUnsafePath) {
//			// hostile package
//		}
//		return err
//	}
//
// # Related Packages
//
//   - pkg/archive/archivetest: builds packages for tests
//   - pkg/plugins: runs the extractor as the first load stage
package archive
