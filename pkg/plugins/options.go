package plugins

import (
	"os"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
)

const (
	// DefaultEntryPoint is called after a module is opened
	DefaultEntryPoint = "axle_init"

	// DefaultDestructor is called before a module is closed
	DefaultDestructor = "axle_exit"

	// DefaultHookOutputSize is the output buffer offered to hooks
	DefaultHookOutputSize = 64 << 10

	// DefaultMaxFailures is the number of failed loads kept for diagnosis
	DefaultMaxFailures = 64

	// DefaultMaxUnloaded is the number of unloaded plugins kept so stale
	// Refs still report their final Info
	DefaultMaxUnloaded = 64
)

// Options configures a Manager
type Options struct {
	// WorkDir is the parent of the Manager's extraction directory. Defaults
	// to the system temporary directory.
	WorkDir string

	// EntryPoint and Destructor are the symbol names used when a descriptor
	// does not declare its own
	EntryPoint string
	Destructor string

	// AllowShadowing lets a load replace a registered plugin of the same
	// name; the replaced plugin is unloaded
	AllowShadowing bool

	// KeepExtracted leaves extracted packages on disk after unload
	KeepExtracted bool

	// DenyRoot makes NewManager fail when running as superuser
	DenyRoot bool

	ArchiveLimits   archive.Limits
	SymbolCacheSize int
	HookOutputSize  int
	MaxFailures     int

	// MaxUnloaded bounds how many unloaded plugins stay inspectable through
	// Plugin. Older ones are forgotten; their Refs then fail with ErrState.
	MaxUnloaded int

	Logger  *logrus.Logger
	Metrics observability.PluginRecorder
	Journal journal.Recorder
	Tracer  trace.Tracer

	// Opener opens native modules; defaults to DynlibOpener
	Opener Opener
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = os.TempDir()
	}
	if o.EntryPoint == "" {
		o.EntryPoint = DefaultEntryPoint
	}
	if o.Destructor == "" {
		o.Destructor = DefaultDestructor
	}
	if o.HookOutputSize <= 0 {
		o.HookOutputSize = DefaultHookOutputSize
	}
	if o.MaxFailures <= 0 {
		o.MaxFailures = DefaultMaxFailures
	}
	if o.MaxUnloaded <= 0 {
		o.MaxUnloaded = DefaultMaxUnloaded
	}
	if o.Logger == nil {
		o.Logger = logrus.New()
	}
	if o.Metrics == nil {
		o.Metrics = observability.NopRecorder{}
	}
	if o.Opener == nil {
		o.Opener = DynlibOpener(o.SymbolCacheSize)
	}
	return o
}
