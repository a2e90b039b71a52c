package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/journal"
)

// seedJournal writes a SQLite journal with one success and one failure
func seedJournal(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := journal.Open(path)
	if err != nil && strings.Contains(err.Error(), "CGO_ENABLED=0") {
		t.Skip("sqlite requires cgo")
	}
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, j.Record(ctx, &journal.Entry{
		Timestamp: now.Add(-time.Minute),
		EventType: journal.EventLoad,
		Status:    journal.StatusSuccess,
		Plugin:    "hello",
		Version:   "1.0.0",
		Duration:  3 * time.Millisecond,
	}))
	require.NoError(t, j.Record(ctx, &journal.Entry{
		Timestamp: now,
		EventType: journal.EventLoad,
		Status:    journal.StatusFailure,
		Archive:   "/tmp/broken.axp",
		Error:     "load /tmp/broken.axp: invalid plugin package",
	}))
	return path
}

func TestJournal_RequiresDSN(t *testing.T) {
	captureOutput(t)
	t.Setenv("AXLE_JOURNAL_DSN", "")

	err := runJournal(nil)
	assert.ErrorContains(t, err, "journal DSN is required")
}

func TestJournal_InvalidOutput(t *testing.T) {
	captureOutput(t)

	assert.Error(t, runJournal([]string{"-output", "xml", "-dsn", "x.db"}))
}

func TestJournal_Text(t *testing.T) {
	out := captureOutput(t)
	dsn := seedJournal(t)

	require.NoError(t, runJournal([]string{"-dsn", dsn}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "EVENT")
	assert.Contains(t, lines[1], "failure")
	assert.Contains(t, lines[1], "invalid plugin package")
	assert.Contains(t, lines[2], "hello")
	assert.Contains(t, lines[2], "1.0.0")
}

func TestJournal_Filters(t *testing.T) {
	out := captureOutput(t)
	dsn := seedJournal(t)

	require.NoError(t, runJournal([]string{"-dsn", dsn, "-failures", "-output", "json"}))

	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusFailure, entries[0].Status)
	assert.Equal(t, "/tmp/broken.axp", entries[0].Archive)

	out.Reset()
	require.NoError(t, runJournal([]string{"-dsn", dsn, "-plugin", "ghost"}))
	assert.Equal(t, "No journal entries\n", out.String())
}
