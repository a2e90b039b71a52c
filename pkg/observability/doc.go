// Package observability provides logging, Prometheus metrics, OpenTelemetry
// setup and the health and shutdown helpers used by the axle host.
//
// # Overview
//
// Logging uses logrus. NewLogger builds the process logger from a level and a
// format name; components take a *logrus.Logger and fall back to logrus.New()
// when given nil.
//
// Plugin lifecycle measurements flow through the PluginRecorder interface.
// PluginMetrics records them as Prometheus series, OTelMetrics as OpenTelemetry
// instruments, and Recorders fans out to several recorders at once.
//
// # Usage Example
//
//	logger := observability.NewLogger("debug", "json", os.Stderr)
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewPluginMetrics(registry)
//	metrics.RecordLoad(ctx, "hello", observability.StatusSuccess, time.Second)
//
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Related Packages
//
//   - pkg/plugins: emits lifecycle measurements
//   - pkg/config: observability configuration
package observability
