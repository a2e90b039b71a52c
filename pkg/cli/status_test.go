package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plugins"
)

type stubModule struct{}

func (stubModule) Path() string                             { return "" }
func (stubModule) Has(symbol string) bool                   { return symbol == plugins.DefaultEntryPoint }
func (stubModule) Call(string, ...uintptr) (uintptr, error) { return 0, nil }
func (stubModule) Close() error                             { return nil }

func newTestStatusServer(t *testing.T) *statusServer {
	t.Helper()

	registry := prometheus.NewRegistry()
	metrics := observability.NewPluginMetrics(registry)
	j := journal.NewMemoryJournal(0)

	mgr, err := plugins.NewManager(plugins.Options{
		WorkDir: t.TempDir(),
		Metrics: metrics,
		Journal: j,
		Opener: func(string) (plugins.Module, error) {
			return stubModule{}, nil
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })

	dir := t.TempDir()
	_, err = mgr.Load(context.Background(), writePackage(t, dir, "hello", "1.0.0", []byte("elf")))
	require.NoError(t, err)
	_, err = mgr.Load(context.Background(), dir+"/missing.axp")
	require.Error(t, err)

	health := observability.NewHealthChecker("test")
	health.AddCheck("journal", false, j.Ping)

	return &statusServer{
		manager:  mgr,
		journal:  j,
		metrics:  metrics,
		registry: registry,
		health:   health,
	}
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatus_Plugins(t *testing.T) {
	handler := newTestStatusServer(t).routes()

	rec := get(t, handler, "/plugins")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var infos []plugins.Info
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, "hello", infos[0].Name)

	rec = get(t, handler, "/plugins/hello")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"initialized"`)

	rec = get(t, handler, "/plugins/ghost")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatus_FailuresAndJournal(t *testing.T) {
	handler := newTestStatusServer(t).routes()

	rec := get(t, handler, "/failures")
	require.Equal(t, http.StatusOK, rec.Code)
	var failures []plugins.Failure
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failures))
	require.Len(t, failures, 1)
	assert.Equal(t, plugins.ErrArchive.Error(), failures[0].Kind)

	rec = get(t, handler, "/journal?limit=1")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, journal.StatusFailure, entries[0].Status)

	rec = get(t, handler, "/journal?plugin=hello")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, journal.EventLoad, entries[0].EventType)

	rec = get(t, handler, "/journal?limit=zero")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus_HealthAndMetrics(t *testing.T) {
	handler := newTestStatusServer(t).routes()

	assert.Equal(t, http.StatusOK, get(t, handler, "/healthz").Code)

	rec := get(t, handler, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"journal"`)

	// Generate a request so the HTTP series exist
	get(t, handler, "/plugins")

	rec = get(t, handler, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "axle_plugins_active 1")
	assert.Contains(t, string(body), `axle_plugin_loads_total{status="failure"} 1`)
	assert.Contains(t, string(body), `path="/plugins"`)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	handler := newTestStatusServer(t).routes()

	req := httptest.NewRequest(http.MethodPost, "/plugins", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
