package observability

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName identifies axle's tracers and meters
const InstrumentationName = "github.com/platinummonkey/axle"

// OTelMetrics records plugin lifecycle measurements as OpenTelemetry instruments
type OTelMetrics struct {
	loadsTotal     metric.Int64Counter
	loadDuration   metric.Float64Histogram
	unloadsTotal   metric.Int64Counter
	hookCallsTotal metric.Int64Counter
	hookDuration   metric.Float64Histogram

	active atomic.Int64
}

// NewOTelMetrics creates the instruments on the given meter provider, or the
// global one when mp is nil.
func NewOTelMetrics(mp metric.MeterProvider) (*OTelMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(InstrumentationName)

	m := &OTelMetrics{}
	var err error

	m.loadsTotal, err = meter.Int64Counter(
		"axle.plugin.loads",
		metric.WithDescription("Total number of plugin load attempts"),
		metric.WithUnit("{load}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin loads counter: %w", err)
	}

	m.loadDuration, err = meter.Float64Histogram(
		"axle.plugin.load.duration",
		metric.WithDescription("Plugin load duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin load duration histogram: %w", err)
	}

	m.unloadsTotal, err = meter.Int64Counter(
		"axle.plugin.unloads",
		metric.WithDescription("Total number of plugin unloads"),
		metric.WithUnit("{unload}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin unloads counter: %w", err)
	}

	m.hookCallsTotal, err = meter.Int64Counter(
		"axle.hook.calls",
		metric.WithDescription("Total number of plugin hook invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook calls counter: %w", err)
	}

	m.hookDuration, err = meter.Float64Histogram(
		"axle.hook.duration",
		metric.WithDescription("Plugin hook duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hook duration histogram: %w", err)
	}

	_, err = meter.Int64ObservableGauge(
		"axle.plugins.active",
		metric.WithDescription("Number of plugins currently registered"),
		metric.WithUnit("{plugin}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(m.active.Load())
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active plugins gauge: %w", err)
	}

	return m, nil
}

// RecordLoad records a load attempt
func (m *OTelMetrics) RecordLoad(ctx context.Context, plugin, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("status", status),
	)
	m.loadsTotal.Add(ctx, 1, attrs)
	m.loadDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordUnload records an unload
func (m *OTelMetrics) RecordUnload(ctx context.Context, plugin, status string) {
	m.unloadsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("status", status),
	))
}

// RecordHook records a hook invocation
func (m *OTelMetrics) RecordHook(ctx context.Context, plugin, hook, status string, duration time.Duration) {
	m.hookCallsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("hook", hook),
		attribute.String("status", status),
	))
	m.hookDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.String("hook", hook),
	))
}

// SetActive sets the number of registered plugins
func (m *OTelMetrics) SetActive(n int) {
	m.active.Store(int64(n))
}
