package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/config"
)

func TestWatch_RequiresDir(t *testing.T) {
	captureOutput(t)
	isolateEnv(t)
	t.Setenv("AXLE_WATCH_DIR", "")

	err := runWatch(nil)
	assert.ErrorContains(t, err, "a directory to watch is required")
}

func TestServeWatch_MissingDir(t *testing.T) {
	captureOutput(t)
	isolateEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Watch.Dir = filepath.Join(t.TempDir(), "missing")

	assert.Error(t, serveWatch(context.Background(), cfg))
}

func TestServeWatch_StopsOnCancel(t *testing.T) {
	captureOutput(t)
	isolateEnv(t)

	cfg, err := config.LoadConfig()
	require.NoError(t, err)
	cfg.Watch.Dir = t.TempDir()
	cfg.Watch.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveWatch(ctx, cfg) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serveWatch did not stop")
	}
}
