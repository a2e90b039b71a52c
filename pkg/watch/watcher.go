package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plugins"
)

// DefaultDebounce is the quiet period used when Config.Debounce is zero
const DefaultDebounce = 500 * time.Millisecond

// Target loads and unloads packages. *plugins.Manager implements it.
type Target interface {
	Load(ctx context.Context, archivePath string) (plugins.Ref, error)
	Unload(ctx context.Context, ref plugins.Ref) error
}

// Config configures a Watcher
type Config struct {
	Dir      string
	Debounce time.Duration
	Target   Target
	Logger   *logrus.Logger

	// OnSync, when set, is called after each batch of changes is applied
	OnSync func(paths []string)
}

// Watcher mirrors a package directory into a Target
type Watcher struct {
	dir      string
	debounce time.Duration
	target   Target
	onSync   func([]string)
	log      *logrus.Logger
	fsw      *fsnotify.Watcher
	started  atomic.Bool

	mu   sync.Mutex
	refs map[string]plugins.Ref
}

// New creates a Watcher for cfg.Dir. The directory must exist.
func New(cfg Config) (*Watcher, error) {
	if cfg.Target == nil {
		return nil, errors.New("watch target is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve watch directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to stat watch directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch path %s is not a directory", dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:      dir,
		debounce: cfg.Debounce,
		target:   cfg.Target,
		onSync:   cfg.OnSync,
		log:      cfg.Logger,
		fsw:      fsw,
		refs:     make(map[string]plugins.Ref),
	}, nil
}

// Dir returns the watched directory
func (w *Watcher) Dir() string {
	return w.dir
}

// Tracked returns the package paths currently loaded by the watcher, sorted
func (w *Watcher) Tracked() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.refs))
	for path := range w.refs {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	return paths
}

// Run loads the packages already in the directory and then applies changes
// until ctx is cancelled. It may only be called once and closes the
// underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watcher already started")
	}
	defer w.fsw.Close()

	if err := w.scan(ctx); err != nil {
		return err
	}
	w.log.Infof("Watching %s for plugin packages", w.dir)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]struct{})
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if !isPackage(event.Name) {
				continue
			}
			w.log.Debugf("Package event: %s", event)
			pending[event.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("Watcher error")

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for path := range pending {
				paths = append(paths, path)
			}
			clear(pending)
			slices.Sort(paths)
			w.apply(ctx, paths)
		}
	}
}

// Close stops the underlying watcher without waiting for Run
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// scan loads every package present when Run starts
func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read watch directory: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		path := filepath.Join(w.dir, entry.Name())
		if !entry.IsDir() && isPackage(path) {
			paths = append(paths, path)
		}
	}
	w.apply(ctx, paths)
	return nil
}

func (w *Watcher) apply(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	for _, path := range paths {
		w.sync(ctx, path)
	}
	if w.onSync != nil {
		w.onSync(paths)
	}
}

// sync brings the target in line with the file at path: a present package
// is (re)loaded, a missing one is unloaded
func (w *Watcher) sync(ctx context.Context, path string) {
	defer observability.RecoverPanic(w.log, "watch sync "+path)

	log := w.log.WithField("archive", path)

	w.mu.Lock()
	ref, tracked := w.refs[path]
	w.mu.Unlock()

	info, err := os.Stat(path)
	present := err == nil && info.Mode().IsRegular()

	if tracked {
		if err := w.target.Unload(ctx, ref); err != nil && !errors.Is(err, plugins.ErrState) {
			log.WithError(err).Warn("Failed to unload package")
		}
		w.mu.Lock()
		delete(w.refs, path)
		w.mu.Unlock()

		if !present {
			log.Infof("Package removed, unloaded %s", ref.Name())
			return
		}
	}

	if !present {
		return
	}

	newRef, err := w.target.Load(ctx, path)
	if err != nil {
		log.WithError(err).Warn("Failed to load package")
		return
	}

	w.mu.Lock()
	w.refs[path] = newRef
	w.mu.Unlock()
}

func isPackage(path string) bool {
	return strings.EqualFold(filepath.Ext(path), archive.Extension)
}
