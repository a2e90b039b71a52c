package observability

import (
	"context"
	"time"
)

// Outcome labels for lifecycle measurements
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// PluginRecorder receives plugin lifecycle measurements. Implementations must
// be safe for concurrent use and must never fail the caller.
type PluginRecorder interface {
	RecordLoad(ctx context.Context, plugin, status string, duration time.Duration)
	RecordUnload(ctx context.Context, plugin, status string)
	RecordHook(ctx context.Context, plugin, hook, status string, duration time.Duration)
	SetActive(n int)
}

// Recorders fans measurements out to every recorder in the slice
type Recorders []PluginRecorder

func (r Recorders) RecordLoad(ctx context.Context, plugin, status string, duration time.Duration) {
	for _, rec := range r {
		rec.RecordLoad(ctx, plugin, status, duration)
	}
}

func (r Recorders) RecordUnload(ctx context.Context, plugin, status string) {
	for _, rec := range r {
		rec.RecordUnload(ctx, plugin, status)
	}
}

func (r Recorders) RecordHook(ctx context.Context, plugin, hook, status string, duration time.Duration) {
	for _, rec := range r {
		rec.RecordHook(ctx, plugin, hook, status, duration)
	}
}

func (r Recorders) SetActive(n int) {
	for _, rec := range r {
		rec.SetActive(n)
	}
}

// NopRecorder discards every measurement
type NopRecorder struct{}

func (NopRecorder) RecordLoad(context.Context, string, string, time.Duration)         {}
func (NopRecorder) RecordUnload(context.Context, string, string)                      {}
func (NopRecorder) RecordHook(context.Context, string, string, string, time.Duration) {}
func (NopRecorder) SetActive(int)                                                     {}

// Status maps an error to an outcome label
func Status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
