package plugins

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/observability"
)

func TestManager_RecordsMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewPluginMetrics(registry)
	h := newHarness(t, func(o *Options) { o.Metrics = metrics })
	h.loader.register("p.so", standardSymbols())

	ref, err := h.mgr.Load(context.Background(), writeSimplePackage(t, h.pkgDir, "p", "1"))
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.PluginsActive))

	_, err = h.mgr.Load(context.Background(), writeSimplePackage(t, h.pkgDir, "nope", "1"))
	require.Error(t, err)

	_, err = h.mgr.InvokeHook(context.Background(), ref, "echo", []byte("x"))
	require.NoError(t, err)
	_, err = h.mgr.InvokeHook(context.Background(), ref, "fail", nil)
	require.Error(t, err)

	require.NoError(t, h.mgr.Unload(context.Background(), ref))

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LoadsTotal.WithLabelValues(observability.StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.LoadsTotal.WithLabelValues(observability.StatusFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HookCallsTotal.WithLabelValues("p", "echo", observability.StatusSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.HookCallsTotal.WithLabelValues("p", "fail", observability.StatusFailure)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.UnloadsTotal.WithLabelValues(observability.StatusSuccess)))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.PluginsActive))
}
