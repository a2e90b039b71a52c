package journal

import (
	"context"
	"maps"
	"sync"
	"time"
)

// EventType identifies a lifecycle event
type EventType string

const (
	EventLoad   EventType = "load"
	EventUnload EventType = "unload"
	EventHook   EventType = "hook"
)

// Status is the outcome of an event
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Entry is a single journal record
type Entry struct {
	ID        int64             `json:"id" yaml:"id"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	EventType EventType         `json:"event_type" yaml:"event_type"`
	Status    Status            `json:"status" yaml:"status"`
	Plugin    string            `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Version   string            `json:"version,omitempty" yaml:"version,omitempty"`
	Archive   string            `json:"archive,omitempty" yaml:"archive,omitempty"`
	Duration  time.Duration     `json:"duration" yaml:"duration"`
	Error     string            `json:"error,omitempty" yaml:"error,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Filter narrows Recent results. Zero fields match everything.
type Filter struct {
	Plugin     string
	EventTypes []EventType
	Status     Status
	Since      time.Time
	Limit      int
}

func (f Filter) matches(e *Entry) bool {
	if f.Plugin != "" && e.Plugin != f.Plugin {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.EventTypes) > 0 {
		for _, t := range f.EventTypes {
			if e.EventType == t {
				return true
			}
		}
		return false
	}
	return true
}

// Recorder stores entries
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Reader returns stored entries, newest first
type Reader interface {
	Recent(ctx context.Context, filter Filter) ([]*Entry, error)
}

// Journal is a readable, closable Recorder
type Journal interface {
	Recorder
	Reader
	Ping(ctx context.Context) error
	Close() error
}

// DefaultMemoryCapacity is the number of entries a MemoryJournal keeps
const DefaultMemoryCapacity = 1024

// MemoryJournal keeps the most recent entries in memory
type MemoryJournal struct {
	mu       sync.RWMutex
	entries  []*Entry
	capacity int
	nextID   int64
}

// NewMemoryJournal creates a journal holding up to capacity entries. Older
// entries are dropped first.
func NewMemoryJournal(capacity int) *MemoryJournal {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryJournal{capacity: capacity}
}

// Record stores a copy of entry and assigns its ID
func (j *MemoryJournal) Record(_ context.Context, entry *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.nextID++
	entry.ID = j.nextID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	stored := *entry
	stored.Metadata = maps.Clone(entry.Metadata)
	j.entries = append(j.entries, &stored)
	if over := len(j.entries) - j.capacity; over > 0 {
		j.entries = append(j.entries[:0:0], j.entries[over:]...)
	}
	return nil
}

// Recent returns matching entries, newest first
func (j *MemoryJournal) Recent(_ context.Context, filter Filter) ([]*Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var result []*Entry
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := j.entries[i]
		if !filter.matches(e) {
			continue
		}
		copied := *e
		copied.Metadata = maps.Clone(e.Metadata)
		result = append(result, &copied)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// Ping always succeeds
func (j *MemoryJournal) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (j *MemoryJournal) Close() error {
	return nil
}
