package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/archive/archivetest"
	"github.com/platinummonkey/axle/pkg/plugins"
)

// stubModule exports only an entry point returning success
type stubModule struct{ path string }

func (m stubModule) Path() string                              { return m.path }
func (m stubModule) Has(symbol string) bool                    { return symbol == plugins.DefaultEntryPoint }
func (m stubModule) Call(string, ...uintptr) (uintptr, error) { return 0, nil }
func (m stubModule) Close() error                              { return nil }

func newManager(t *testing.T) *plugins.Manager {
	t.Helper()

	mgr, err := plugins.NewManager(plugins.Options{
		WorkDir: t.TempDir(),
		Opener: func(path string) (plugins.Module, error) {
			return stubModule{path: path}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func writePackage(t *testing.T, path, name, version string) {
	t.Helper()

	// Write next to the target and rename so the watcher never sees a
	// half-written archive
	tmp := filepath.Join(t.TempDir(), filepath.Base(path))
	archivetest.Write(t, tmp, map[string][]byte{
		"metadata.toml": archivetest.Descriptor(name, version, "plugin.so"),
		"plugin.so":     []byte("stub"),
	})
	require.NoError(t, os.Rename(tmp, path))
}

type syncRecorder struct {
	mu      sync.Mutex
	batches [][]string
}

func (r *syncRecorder) record(paths []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, paths)
}

func (r *syncRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func startWatcher(t *testing.T, dir string, mgr *plugins.Manager, rec *syncRecorder) *Watcher {
	t.Helper()

	logger, _ := test.NewNullLogger()
	w, err := New(Config{
		Dir:      dir,
		Debounce: 20 * time.Millisecond,
		Target:   mgr,
		Logger:   logger,
		OnSync:   rec.record,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("watcher did not stop")
		}
	})
	return w
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir()})
	assert.ErrorContains(t, err, "target is required")

	mgr := newManager(t)
	_, err = New(Config{Dir: filepath.Join(t.TempDir(), "missing"), Target: mgr})
	assert.ErrorIs(t, err, os.ErrNotExist)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Config{Dir: file, Target: mgr})
	assert.ErrorContains(t, err, "not a directory")

	w, err := New(Config{Dir: t.TempDir(), Target: mgr})
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.debounce)
	assert.NotNil(t, w.log)
	require.NoError(t, w.Close())
}

func TestWatcher_LoadsExistingPackages(t *testing.T) {
	dir := t.TempDir()
	writePackage(t, filepath.Join(dir, "a.axp"), "alpha", "1.0.0")
	writePackage(t, filepath.Join(dir, "b.axp"), "beta", "1.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	mgr := newManager(t)
	rec := &syncRecorder{}
	w := startWatcher(t, dir, mgr, rec)

	require.Eventually(t, func() bool { return rec.count() >= 1 }, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, 2, mgr.Len())
	assert.Equal(t, []string{filepath.Join(dir, "a.axp"), filepath.Join(dir, "b.axp")}, w.Tracked())
}

func TestWatcher_FollowsChanges(t *testing.T) {
	dir := t.TempDir()
	mgr := newManager(t)
	rec := &syncRecorder{}
	w := startWatcher(t, dir, mgr, rec)

	path := filepath.Join(dir, "gamma.axp")
	writePackage(t, path, "gamma", "1.0.0")

	require.Eventually(t, func() bool { return mgr.Len() == 1 }, 5*time.Second, 10*time.Millisecond)
	ref, err := mgr.Get("gamma")
	require.NoError(t, err)
	info, err := mgr.Plugin(ref)
	require.NoError(t, err)
	assert.Equal(t, "1.0.0", info.Version)

	// Replacing the file reloads the plugin
	writePackage(t, path, "gamma", "2.0.0")
	require.Eventually(t, func() bool {
		ref, err := mgr.Get("gamma")
		if err != nil {
			return false
		}
		info, err := mgr.Plugin(ref)
		return err == nil && info.Version == "2.0.0"
	}, 5*time.Second, 10*time.Millisecond)

	old, err := mgr.Plugin(ref)
	require.NoError(t, err)
	assert.Equal(t, plugins.StateUnloaded, old.State)

	// Removing the file unloads it
	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return mgr.Len() == 0 }, 5*time.Second, 10*time.Millisecond)
	assert.Empty(t, w.Tracked())
}

func TestWatcher_IgnoresBrokenPackages(t *testing.T) {
	dir := t.TempDir()
	mgr := newManager(t)
	rec := &syncRecorder{}
	w := startWatcher(t, dir, mgr, rec)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.axp"), []byte("not a zip"), 0o644))

	require.Eventually(t, func() bool { return len(mgr.Failures()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, mgr.Len())
	assert.Empty(t, w.Tracked())
}

func TestWatcher_RunOnce(t *testing.T) {
	mgr := newManager(t)
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	w, err := New(Config{Dir: t.TempDir(), Target: mgr, Logger: logger})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))
	assert.ErrorContains(t, w.Run(ctx), "already started")
}

func TestIsPackage(t *testing.T) {
	assert.True(t, isPackage("/x/plugin.axp"))
	assert.True(t, isPackage("/x/PLUGIN.AXP"))
	assert.False(t, isPackage("/x/plugin.zip"))
	assert.False(t, isPackage("/x/plugin.axp.tmp"))
}
