// Package watch keeps a plugin manager in sync with a directory of packages.
//
// # Overview
//
// A Watcher loads every package already present in its directory, then
// follows filesystem events. Creating or replacing a package loads it,
// replacing the previously loaded version; removing a package unloads it.
// Bursts of events for the same file are coalesced over a debounce window,
// so editors and copy tools that write a file in several steps trigger a
// single reload.
//
// # Usage Example
//
//	w, err := watch.New(watch.Config{
//		Dir:      "/etc/axle/plugins",
//		Debounce: 500 * time.Millisecond,
//		Target:   mgr,
//		Logger:   logger,
//	})
//	if err != nil {
//		return err
//	}
//	return w.Run(ctx)
//
// # Related Packages
//
//   - pkg/plugins: Provides the Manager a Watcher drives
package watch
