package journal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJournal_RecordAndRecent(t *testing.T) {
	j := NewMemoryJournal(0)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, &Entry{EventType: EventLoad, Status: StatusSuccess, Plugin: "a"}))
	require.NoError(t, j.Record(ctx, &Entry{EventType: EventLoad, Status: StatusFailure, Archive: "/p/b.axp", Error: "boom"}))
	require.NoError(t, j.Record(ctx, &Entry{EventType: EventUnload, Status: StatusSuccess, Plugin: "a"}))

	entries, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(3), entries[0].ID)
	assert.Equal(t, EventUnload, entries[0].EventType)
	assert.Equal(t, int64(1), entries[2].ID)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestMemoryJournal_Filter(t *testing.T) {
	j := NewMemoryJournal(10)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, e := range []*Entry{
		{EventType: EventLoad, Status: StatusSuccess, Plugin: "a"},
		{EventType: EventHook, Status: StatusFailure, Plugin: "a"},
		{EventType: EventLoad, Status: StatusSuccess, Plugin: "b"},
		{EventType: EventUnload, Status: StatusSuccess, Plugin: "a"},
	} {
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, j.Record(ctx, e))
	}

	tests := []struct {
		name    string
		filter  Filter
		wantIDs []int64
	}{
		{"plugin", Filter{Plugin: "a"}, []int64{4, 2, 1}},
		{"status", Filter{Status: StatusFailure}, []int64{2}},
		{"event types", Filter{EventTypes: []EventType{EventLoad, EventUnload}}, []int64{4, 3, 1}},
		{"since", Filter{Since: base.Add(2 * time.Minute)}, []int64{4, 3}},
		{"limit", Filter{Limit: 2}, []int64{4, 3}},
		{"no match", Filter{Plugin: "c"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := j.Recent(ctx, tt.filter)
			require.NoError(t, err)

			var ids []int64
			for _, e := range entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMemoryJournal_Capacity(t *testing.T) {
	j := NewMemoryJournal(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, j.Record(ctx, &Entry{EventType: EventLoad, Status: StatusSuccess, Plugin: fmt.Sprintf("p%d", i)}))
	}

	entries, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "p4", entries[0].Plugin)
	assert.Equal(t, "p2", entries[2].Plugin)
}

func TestMemoryJournal_ReturnsCopies(t *testing.T) {
	j := NewMemoryJournal(3)
	ctx := context.Background()

	e := &Entry{EventType: EventLoad, Status: StatusSuccess, Plugin: "a"}
	require.NoError(t, j.Record(ctx, e))
	e.Plugin = "mutated"

	entries, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	entries[0].Status = StatusFailure

	again, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "a", again[0].Plugin)
	assert.Equal(t, StatusSuccess, again[0].Status)
	assert.NoError(t, j.Ping(ctx))
	assert.NoError(t, j.Close())
}

func TestMemoryJournal_CopiesMetadata(t *testing.T) {
	j := NewMemoryJournal(0)
	ctx := context.Background()

	meta := map[string]string{"hook": "greet"}
	require.NoError(t, j.Record(ctx, &Entry{EventType: EventHook, Status: StatusFailure, Metadata: meta}))
	meta["hook"] = "mutated"

	entries, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "greet", entries[0].Metadata["hook"])
	entries[0].Metadata["hook"] = "changed by reader"

	again, err := j.Recent(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, "greet", again[0].Metadata["hook"])
}
