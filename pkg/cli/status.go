package cli

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plugins"
)

// statusServer exposes the manager's state over HTTP
type statusServer struct {
	manager  *plugins.Manager
	journal  journal.Reader
	metrics  *observability.PluginMetrics
	registry *prometheus.Registry
	health   *observability.HealthChecker
}

func (s *statusServer) routes() http.Handler {
	r := mux.NewRouter()
	if s.metrics != nil {
		r.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	r.HandleFunc("/plugins", s.listPlugins).Methods(http.MethodGet)
	r.HandleFunc("/plugins/{name}", s.getPlugin).Methods(http.MethodGet)
	r.HandleFunc("/failures", s.listFailures).Methods(http.MethodGet)
	r.HandleFunc("/journal", s.listJournal).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.Readiness).Methods(http.MethodGet)
	if s.registry != nil {
		r.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
	}

	return otelhttp.NewHandler(r, "axle.status")
}

func (s *statusServer) listPlugins(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *statusServer) getPlugin(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	ref, err := s.manager.Get(name)
	if err != nil {
		writeError(w, err)
		return
	}
	info, err := s.manager.Plugin(ref)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *statusServer) listFailures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Failures())
}

func (s *statusServer) listJournal(w http.ResponseWriter, r *http.Request) {
	filter := journal.Filter{
		Plugin: r.URL.Query().Get("plugin"),
		Limit:  50,
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		filter.Limit = n
	}

	entries, err := s.journal.Recent(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []*journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, plugins.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, plugins.ErrState):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
