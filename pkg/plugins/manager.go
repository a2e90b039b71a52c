package plugins

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/observability"
)

// Manager loads plugin packages and owns every plugin it loads. It is safe
// for concurrent use.
type Manager struct {
	m       *manager
	cleanup runtime.Cleanup
}

// manager holds the state shared with Refs. It is separate from Manager so
// Refs do not keep an abandoned Manager reachable.
type manager struct {
	opts       Options
	log        *logrus.Logger
	extractor  *archive.Extractor
	tracer     trace.Tracer
	sessionDir string

	// lifecycle serializes Load, Unload and Close
	lifecycle sync.Mutex

	mu       sync.RWMutex
	arena    map[uint64]*Plugin
	byName   map[string]uint64
	order    []uint64
	unloaded []uint64
	nextID   uint64
	closed   bool
	failures []Failure
}

// NewManager creates a Manager with its own extraction directory under
// opts.WorkDir
func NewManager(opts Options) (*Manager, error) {
	opts = opts.withDefaults()

	if opts.DenyRoot && os.Geteuid() == 0 {
		return nil, ErrSuperuser
	}

	if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	sessionDir, err := os.MkdirTemp(opts.WorkDir, "axle-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(observability.InstrumentationName)
	}

	inner := &manager{
		opts:       opts,
		log:        opts.Logger,
		extractor:  archive.NewExtractor(opts.ArchiveLimits, opts.Logger),
		tracer:     tracer,
		sessionDir: sessionDir,
		arena:      make(map[uint64]*Plugin),
		byName:     make(map[string]uint64),
	}

	mgr := &Manager{m: inner}
	mgr.cleanup = runtime.AddCleanup(mgr, func(m *manager) {
		m.abandoned()
	}, inner)

	inner.log.WithField("work_dir", sessionDir).Debug("Plugin manager created")
	return mgr, nil
}

// WorkDir returns the directory packages are extracted into
func (mgr *Manager) WorkDir() string {
	return mgr.m.sessionDir
}

// Load loads the package at archivePath. See manager.load.
func (mgr *Manager) Load(ctx context.Context, archivePath string) (Ref, error) {
	return mgr.m.load(ctx, archivePath)
}

// LoadDir loads every package in dir. See manager.loadDir.
func (mgr *Manager) LoadDir(ctx context.Context, dir string) ([]Ref, error) {
	return mgr.m.loadDir(ctx, dir)
}

// Get returns a Ref to the plugin registered under name
func (mgr *Manager) Get(name string) (Ref, error) {
	return mgr.m.get(name)
}

// Plugin returns a snapshot of the plugin behind ref
func (mgr *Manager) Plugin(ref Ref) (Info, error) {
	p, err := mgr.m.resolve("get", ref)
	if err != nil {
		return Info{}, err
	}
	return p.info(), nil
}

// List returns a snapshot of every registered plugin in load order
func (mgr *Manager) List() []Info {
	return mgr.m.list()
}

// Len returns the number of registered plugins
func (mgr *Manager) Len() int {
	return mgr.m.count()
}

// InvokeHook calls a hook exported by the plugin behind ref
func (mgr *Manager) InvokeHook(ctx context.Context, ref Ref, hook string, payload []byte) (*HookResult, error) {
	return mgr.m.invokeHook(ctx, ref, hook, payload)
}

// HasHook reports whether the plugin behind ref exports hook
func (mgr *Manager) HasHook(ref Ref, hook string) (bool, error) {
	return mgr.m.hasHook(ref, hook)
}

// Unload unloads the plugin behind ref and removes it from the registry
func (mgr *Manager) Unload(ctx context.Context, ref Ref) error {
	return mgr.m.unload(ctx, ref)
}

// Failures returns the most recent failed load attempts, oldest first
func (mgr *Manager) Failures() []Failure {
	mgr.m.mu.RLock()
	defer mgr.m.mu.RUnlock()

	out := make([]Failure, len(mgr.m.failures))
	copy(out, mgr.m.failures)
	return out
}

// Closed reports whether Close has been called
func (mgr *Manager) Closed() bool {
	mgr.m.mu.RLock()
	defer mgr.m.mu.RUnlock()
	return mgr.m.closed
}

// Close unloads every plugin, most recently loaded first, and removes the
// extraction directory. It is idempotent.
func (mgr *Manager) Close() error {
	mgr.cleanup.Stop()
	return mgr.m.close(context.Background())
}
