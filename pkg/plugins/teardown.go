package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
)

// unload removes the plugin behind ref from the registry and releases it
func (m *manager) unload(ctx context.Context, ref Ref) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	p, err := m.resolve("unload", ref)
	if err != nil {
		return err
	}
	if state := p.State(); state == StateUnloaded {
		return errorf("unload", p.desc.Name, ErrState, "plugin is %s", state)
	}

	ctx, span := m.tracer.Start(ctx, "axle.plugins.Unload",
		trace.WithAttributes(attribute.String("axle.plugin", p.desc.Name)))
	defer span.End()

	if err := m.unloadPlugin(ctx, p); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// unloadPlugin deregisters p and shuts it down. Callers hold the lifecycle lock.
func (m *manager) unloadPlugin(ctx context.Context, p *Plugin) error {
	m.remove(p)

	start := time.Now()
	log := m.pluginLog(ctx, p)
	err := p.shutdown(m.opts.Destructor, m.opts.KeepExtracted, StateUnloaded, log)
	duration := time.Since(start)

	entry := &journal.Entry{
		EventType: journal.EventUnload,
		Status:    journal.StatusSuccess,
		Plugin:    p.desc.Name,
		Version:   p.desc.Version,
		Archive:   p.archive,
		Duration:  duration,
	}

	if err != nil {
		err = newError("unload", p.desc.Name, ErrInvocation, err)
		log.WithError(err).Warn("Plugin unloaded with errors")
		entry.Status = journal.StatusFailure
		entry.Error = err.Error()
	} else {
		log.Infof("Unloaded plugin: %s", p.desc.Name)
	}

	m.opts.Metrics.RecordUnload(ctx, p.desc.Name, observability.Status(err))
	m.journal(ctx, entry)
	return err
}

// close unloads every registered plugin, most recently loaded first, then
// removes the session directory. Every plugin gets one unload attempt;
// errors are joined. Calling close again returns nil.
func (m *manager) close(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	order := slices.Clone(m.order)
	plugins := make([]*Plugin, 0, len(order))
	for _, id := range order {
		plugins = append(plugins, m.arena[id])
	}
	m.mu.Unlock()

	m.log.WithField("plugins", len(plugins)).Debug("Closing plugin manager")

	var errs []error
	for _, p := range slices.Backward(plugins) {
		if err := m.unloadPlugin(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}

	m.mu.Lock()
	clear(m.arena)
	clear(m.byName)
	m.order = nil
	m.unloaded = nil
	m.mu.Unlock()

	if !m.opts.KeepExtracted {
		if err := os.RemoveAll(m.sessionDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove work directory: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		m.log.WithError(err).Warn("Plugin manager closed with errors")
	}
	return err
}

// abandoned runs when a Manager is garbage collected without Close
func (m *manager) abandoned() {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return
	}

	m.log.Warn("Plugin manager was not closed; tearing down")
	if err := m.close(context.Background()); err != nil {
		m.log.WithError(err).Error("Failed to tear down abandoned plugin manager")
	}
}
