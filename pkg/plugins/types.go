package plugins

import (
	"time"

	"github.com/platinummonkey/axle/pkg/descriptor"
)

// Ref is a non-owning handle to a loaded plugin. It stays comparable and
// cheap to copy; every Manager operation re-validates it.
type Ref struct {
	m    *manager
	id   uint64
	name string
}

// Name returns the plugin name the Ref was issued for
func (r Ref) Name() string {
	return r.name
}

// ID returns the Manager-unique plugin id
func (r Ref) ID() uint64 {
	return r.id
}

// IsZero reports whether r was never issued by a Manager
func (r Ref) IsZero() bool {
	return r.m == nil
}

// Info is a snapshot of a plugin's state
type Info struct {
	ID             uint64                `json:"id" yaml:"id"`
	Name           string                `json:"name" yaml:"name"`
	Version        string                `json:"version" yaml:"version"`
	Description    string                `json:"description,omitempty" yaml:"description,omitempty"`
	State          State                 `json:"state" yaml:"state"`
	Descriptor     descriptor.Descriptor `json:"descriptor" yaml:"descriptor"`
	Archive        string                `json:"archive" yaml:"archive"`
	WorkDir        string                `json:"work_dir" yaml:"work_dir"`
	ObjectPath     string                `json:"object_path" yaml:"object_path"`
	LoadedAt       time.Time             `json:"loaded_at" yaml:"loaded_at"`
	Initialized    bool                  `json:"initialized" yaml:"initialized"`
	HookCalls      uint64                `json:"hook_calls" yaml:"hook_calls"`
	LastError      string                `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	SingleThreaded bool                  `json:"single_threaded" yaml:"single_threaded"`
}

// HookResult is the outcome of a hook call that reached native code
type HookResult struct {
	Plugin    string        `json:"plugin" yaml:"plugin"`
	Hook      string        `json:"hook" yaml:"hook"`
	Code      int32         `json:"code" yaml:"code"`
	Output    []byte        `json:"output,omitempty" yaml:"output,omitempty"`
	Truncated bool          `json:"truncated,omitempty" yaml:"truncated,omitempty"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// Failure records a failed load attempt
type Failure struct {
	ID      string    `json:"id" yaml:"id"`
	Archive string    `json:"archive" yaml:"archive"`
	Plugin  string    `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	Kind    string    `json:"kind" yaml:"kind"`
	Message string    `json:"message" yaml:"message"`
	At      time.Time `json:"at" yaml:"at"`

	Err error `json:"-" yaml:"-"`
}
