package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PluginMetrics holds the Prometheus metrics of a plugin host
type PluginMetrics struct {
	// Lifecycle metrics
	LoadsTotal    *prometheus.CounterVec
	LoadDuration  *prometheus.HistogramVec
	UnloadsTotal  *prometheus.CounterVec
	PluginsActive prometheus.Gauge

	// Hook metrics
	HookCallsTotal *prometheus.CounterVec
	HookDuration   *prometheus.HistogramVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewPluginMetrics creates and registers all plugin host metrics
func NewPluginMetrics(registry prometheus.Registerer) *PluginMetrics {
	m := &PluginMetrics{
		// Lifecycle metrics
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axle_plugin_loads_total",
				Help: "Total number of plugin load attempts",
			},
			[]string{"status"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axle_plugin_load_duration_seconds",
				Help:    "Plugin load duration in seconds, from archive to initialized",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"status"},
		),
		UnloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axle_plugin_unloads_total",
				Help: "Total number of plugin unloads",
			},
			[]string{"status"},
		),
		PluginsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "axle_plugins_active",
				Help: "Number of plugins currently registered",
			},
		),

		// Hook metrics
		HookCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axle_hook_calls_total",
				Help: "Total number of plugin hook invocations",
			},
			[]string{"plugin", "hook", "status"},
		),
		HookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axle_hook_duration_seconds",
				Help:    "Plugin hook duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"plugin", "hook"},
		),

		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "axle_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "axle_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.LoadsTotal,
		m.LoadDuration,
		m.UnloadsTotal,
		m.PluginsActive,
		m.HookCallsTotal,
		m.HookDuration,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// RecordLoad records a load attempt. The plugin name is not used as a label
// since failed loads may not have one.
func (m *PluginMetrics) RecordLoad(_ context.Context, _ string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(status).Inc()
	m.LoadDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordUnload records an unload
func (m *PluginMetrics) RecordUnload(_ context.Context, _ string, status string) {
	if m == nil {
		return
	}
	m.UnloadsTotal.WithLabelValues(status).Inc()
}

// RecordHook records a hook invocation
func (m *PluginMetrics) RecordHook(_ context.Context, plugin, hook, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HookCallsTotal.WithLabelValues(plugin, hook, status).Inc()
	m.HookDuration.WithLabelValues(plugin, hook).Observe(duration.Seconds())
}

// SetActive sets the number of registered plugins
func (m *PluginMetrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.PluginsActive.Set(float64(n))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled with
// the matched mux route template to keep label cardinality bounded.
func HTTPMetricsMiddleware(metrics *PluginMetrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := r.URL.Path
			if route := mux.CurrentRoute(r); route != nil {
				if tmpl, err := route.GetPathTemplate(); err == nil {
					path = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
