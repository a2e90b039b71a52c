// Package journal persists plugin lifecycle events for later diagnosis.
//
// # Overview
//
// Every load attempt, unload and failed hook call can be recorded as an
// Entry. MemoryJournal keeps a bounded in-process history; SQLJournal stores
// entries in PostgreSQL or SQLite, selected by the DSN passed to Open.
//
// Journals are a diagnostic side channel. The plugin manager logs journal
// write failures and carries on.
//
// # Usage Example
//
//	j, err := journal.Open("postgres://axle@localhost/axle?sslmode=disable")
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//
//	entries, err := j.Recent(ctx, journal.Filter{Plugin: "hello", Limit: 20})
//
// # Related Packages
//
//   - pkg/plugins: records lifecycle events
package journal
