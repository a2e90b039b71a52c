package plugins

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/axle/pkg/archive"
	"github.com/platinummonkey/axle/pkg/descriptor"
	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
)

// load runs the full pipeline: extract, parse the descriptor, open the
// module and call the entry point. Every failure path releases what was
// acquired before returning. A started load is not abandoned when ctx is
// cancelled.
func (m *manager) load(ctx context.Context, archivePath string) (Ref, error) {
	if err := ctx.Err(); err != nil {
		return Ref{}, newError("load", archivePath, ErrState, err)
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Ref{}, errorf("load", archivePath, ErrState, "manager is closed")
	}

	start := time.Now()
	ctx, span := m.tracer.Start(ctx, "axle.plugins.Load",
		trace.WithAttributes(attribute.String("axle.archive", archivePath)))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			err := errorf("load", archivePath, ErrInvocation, "panic during load: %v", r)
			m.loadFailed(ctx, archivePath, "", err, time.Since(start))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			panic(r)
		}
	}()

	p, err := m.loadPlugin(ctx, archivePath)
	duration := time.Since(start)

	if err != nil {
		name := ""
		if p != nil {
			name = p.desc.Name
		}
		m.loadFailed(ctx, archivePath, name, err, duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Ref{}, err
	}

	shadowed := m.insert(p)
	ref := Ref{m: m, id: p.id, name: p.desc.Name}
	span.SetAttributes(
		attribute.String("axle.plugin", p.desc.Name),
		attribute.String("axle.plugin.version", p.desc.Version),
	)

	log := m.pluginLog(ctx, p)
	log.WithField("duration", duration).Infof("Loaded plugin: %s v%s", p.desc.Name, p.desc.Version)
	m.opts.Metrics.RecordLoad(ctx, p.desc.Name, observability.StatusSuccess, duration)
	m.journal(ctx, &journal.Entry{
		EventType: journal.EventLoad,
		Status:    journal.StatusSuccess,
		Plugin:    p.desc.Name,
		Version:   p.desc.Version,
		Archive:   archivePath,
		Duration:  duration,
		Metadata: map[string]string{
			"threading": p.desc.Threading,
			"format":    fmt.Sprint(p.desc.Format),
		},
	})

	if shadowed != 0 {
		m.mu.RLock()
		old := m.arena[shadowed]
		m.mu.RUnlock()

		log.Infof("Plugin %s replaces previously loaded plugin #%d", p.desc.Name, shadowed)
		if err := m.unloadPlugin(ctx, old); err != nil {
			log.WithError(err).Warn("Failed to unload shadowed plugin")
		}
	}

	return ref, nil
}

// loadPlugin builds an Initialized plugin. On failure the returned plugin,
// when non-nil, carries the descriptor for diagnostics and has been shut down.
func (m *manager) loadPlugin(ctx context.Context, archivePath string) (*Plugin, error) {
	absPath, err := filepath.Abs(archivePath)
	if err != nil {
		return nil, newError("load", archivePath, ErrArchive, err)
	}

	workDir := filepath.Join(m.sessionDir, uuid.NewString())
	dir, err := m.extractor.Extract(absPath, workDir, descriptor.FileName)
	if err != nil {
		return nil, newError("load", archivePath, ErrArchive, err)
	}

	cleanupDir := func() {
		if m.opts.KeepExtracted {
			return
		}
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			m.log.Warnf("Failed to remove %s: %v", dir, rmErr)
		}
	}

	desc, err := descriptor.LoadFromDir(dir)
	if err != nil {
		cleanupDir()
		return nil, newError("load", archivePath, ErrMetadata, err)
	}

	// Reject collisions before any native code runs
	if !m.opts.AllowShadowing && m.registered(desc.Name) {
		cleanupDir()
		return &Plugin{desc: desc}, errorf("load", desc.Name, ErrIdentityCollision,
			"a plugin named %q is already loaded", desc.Name)
	}

	objectPath := filepath.Join(dir, filepath.FromSlash(desc.ObjFile))
	if info, err := os.Stat(objectPath); err != nil {
		cleanupDir()
		return &Plugin{desc: desc}, newError("load", desc.Name, ErrModuleOpen, err)
	} else if !info.Mode().IsRegular() {
		cleanupDir()
		return &Plugin{desc: desc}, errorf("load", desc.Name, ErrModuleOpen, "%s is not a regular file", desc.ObjFile)
	}

	m.nextID++
	p := newPlugin(m.nextID, desc, archivePath, dir, objectPath)
	log := m.pluginLog(ctx, p)

	// A panicking Opener or entry point still releases the module, the
	// executor and the work directory
	defer func() {
		if r := recover(); r != nil {
			m.abort(p, log)
			panic(r)
		}
	}()

	if err := p.open(m.opts.Opener); err != nil {
		m.abort(p, log)
		return p, newError("load", desc.Name, ErrModuleOpen, err)
	}

	if err := p.initialize(m.opts.EntryPoint, log); err != nil {
		m.abort(p, log)
		return p, err
	}

	trace.SpanFromContext(ctx).AddEvent("initialized")
	return p, nil
}

// abort moves a plugin that failed mid-load to Failed and releases it
func (m *manager) abort(p *Plugin, log *logrus.Entry) {
	if err := p.shutdown(m.opts.Destructor, m.opts.KeepExtracted, StateFailed, log); err != nil {
		log.WithError(err).Warn("Failed to release plugin after load failure")
	}
}

func (m *manager) loadFailed(ctx context.Context, archivePath, name string, err error, duration time.Duration) {
	kind := kindOf(err)
	if kind == nil {
		kind = ErrState
	}

	m.recordFailure(Failure{
		ID:      uuid.NewString(),
		Archive: archivePath,
		Plugin:  name,
		Kind:    kind.Error(),
		Message: err.Error(),
		At:      time.Now(),
		Err:     err,
	})

	observability.WithTraceContext(ctx, m.log).WithFields(logrus.Fields{
		"archive": archivePath,
		"plugin":  name,
	}).WithError(err).Warn("Failed to load plugin")

	m.opts.Metrics.RecordLoad(ctx, name, observability.StatusFailure, duration)
	m.journal(ctx, &journal.Entry{
		EventType: journal.EventLoad,
		Status:    journal.StatusFailure,
		Plugin:    name,
		Archive:   archivePath,
		Duration:  duration,
		Error:     err.Error(),
	})
}

// loadDir loads every package in dir with the archive extension, in lexical
// order. Failures are joined; successful loads remain registered.
func (m *manager) loadDir(ctx context.Context, dir string) ([]Ref, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}

	var (
		refs []Ref
		errs []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), archive.Extension) {
			continue
		}

		ref, err := m.load(ctx, filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, ref)
	}

	return refs, errors.Join(errs...)
}

// pluginLog returns an entry carrying the plugin identity and, when ctx has
// an active span, its trace and span ids
func (m *manager) pluginLog(ctx context.Context, p *Plugin) *logrus.Entry {
	return observability.WithTraceContext(ctx, m.log).WithFields(logrus.Fields{
		"plugin":  p.desc.Name,
		"version": p.desc.Version,
		"id":      p.id,
	})
}

// journal records an entry; failures are logged and otherwise ignored
func (m *manager) journal(ctx context.Context, entry *journal.Entry) {
	if m.opts.Journal == nil {
		return
	}
	if err := m.opts.Journal.Record(ctx, entry); err != nil {
		m.log.WithError(err).Warn("Failed to write journal entry")
	}
}
