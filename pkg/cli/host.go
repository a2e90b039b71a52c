package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/axle/pkg/config"
	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
	"github.com/platinummonkey/axle/pkg/plugins"
)

// host bundles a plugin manager with the logging, metrics, tracing and
// journal it reports to
type host struct {
	cfg      *config.Config
	log      *logrus.Logger
	registry *prometheus.Registry
	metrics  *observability.PluginMetrics
	journal  journal.Journal
	otel     *observability.OTelProviders
	manager  *plugins.Manager
}

func newHost(ctx context.Context, cfg *config.Config) (_ *host, err error) {
	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, stderr)
	h := &host{cfg: cfg, log: log}

	// Release whatever was set up before a failure
	defer func() {
		if err != nil {
			if closeErr := h.Close(ctx); closeErr != nil {
				log.WithError(closeErr).Warn("Failed to release partially initialized host")
			}
		}
	}()

	h.otel, err = observability.InitOTel(ctx, cfg.OTelConfig(), log)
	if err != nil {
		return nil, err
	}

	var recorders observability.Recorders
	if cfg.Observability.MetricsEnabled {
		h.registry = prometheus.NewRegistry()
		h.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		h.metrics = observability.NewPluginMetrics(h.registry)
		recorders = append(recorders, h.metrics)
	}
	if h.otel != nil {
		otelMetrics, err := observability.NewOTelMetrics(h.otel.MeterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenTelemetry metrics: %w", err)
		}
		recorders = append(recorders, otelMetrics)
	}

	if cfg.Journal.DSN != "" {
		j, err := journal.Open(cfg.Journal.DSN)
		if err != nil {
			return nil, err
		}
		h.journal = j
	} else {
		h.journal = journal.NewMemoryJournal(0)
	}

	opts := cfg.ManagerOptions()
	opts.Logger = log
	opts.Metrics = recorders
	opts.Journal = h.journal
	if h.otel != nil {
		opts.Tracer = h.otel.TracerProvider.Tracer(observability.InstrumentationName)
	}

	h.manager, err = plugins.NewManager(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin manager: %w", err)
	}

	return h, nil
}

// Close unloads every plugin, then closes the journal and flushes telemetry
func (h *host) Close(ctx context.Context) error {
	var errs []error

	if h.manager != nil {
		if err := h.manager.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if h.journal != nil {
		if err := h.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close journal: %w", err))
		}
	}
	if err := h.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
