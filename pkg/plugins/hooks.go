package plugins

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/axle/pkg/hookabi"
	"github.com/platinummonkey/axle/pkg/journal"
	"github.com/platinummonkey/axle/pkg/observability"
)

// invokeHook calls hook with payload. The plugin must be Initialized or
// Running. A missing symbol or a failed call leaves the lifecycle state
// unchanged; a non-zero return code yields ErrInvocation with the result
// attached.
func (m *manager) invokeHook(ctx context.Context, ref Ref, hook string, payload []byte) (*HookResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError("invoke", ref.name, ErrState, err)
	}

	p, err := m.resolve("invoke", ref)
	if err != nil {
		return nil, err
	}

	ctx, span := m.tracer.Start(ctx, "axle.plugins.InvokeHook", trace.WithAttributes(
		attribute.String("axle.plugin", p.desc.Name),
		attribute.String("axle.hook", hook),
		attribute.Int("axle.payload.bytes", len(payload)),
	))
	defer span.End()

	start := time.Now()
	result, err := m.callHook(p, hook, payload)
	duration := time.Since(start)

	if result != nil {
		result.Duration = duration
		span.SetAttributes(attribute.Int("axle.hook.code", int(result.Code)))
	}

	status := observability.Status(err)
	m.opts.Metrics.RecordHook(ctx, p.desc.Name, hook, status, duration)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.pluginLog(ctx, p).WithField("hook", hook).WithError(err).Debug("Hook call failed")
		m.journal(ctx, &journal.Entry{
			EventType: journal.EventHook,
			Status:    journal.StatusFailure,
			Plugin:    p.desc.Name,
			Version:   p.desc.Version,
			Archive:   p.archive,
			Duration:  duration,
			Error:     err.Error(),
			Metadata:  map[string]string{"hook": hook},
		})
		return result, err
	}

	return result, nil
}

func (m *manager) callHook(p *Plugin, hook string, payload []byte) (result *HookResult, err error) {
	p.callMu.RLock()
	defer p.callMu.RUnlock()

	if err := p.beginCall(); err != nil {
		return nil, err
	}
	defer func() { p.endCall(err) }()

	if !p.module.Has(hook) {
		return nil, errorf("invoke", p.desc.Name, ErrSymbolNotFound, "hook %q is not exported", hook)
	}

	frame := hookabi.NewFrame(payload, m.opts.HookOutputSize)
	r1, callErr := p.call(hook, frame.Pointer())
	frame.Release()

	if callErr != nil {
		return nil, newError("invoke", p.desc.Name, moduleErrorKind(callErr), callErr)
	}

	result = &HookResult{
		Plugin:    p.desc.Name,
		Hook:      hook,
		Code:      hookabi.Code(r1),
		Output:    frame.Output(),
		Truncated: frame.Truncated(),
	}
	if result.Code != 0 {
		e := errorf("invoke", p.desc.Name, ErrInvocation, "hook %q returned %d", hook, result.Code)
		e.Result = result
		return result, e
	}
	return result, nil
}

// hasHook reports whether the plugin behind ref exports hook
func (m *manager) hasHook(ref Ref, hook string) (bool, error) {
	p, err := m.resolve("has_hook", ref)
	if err != nil {
		return false, err
	}

	p.callMu.RLock()
	defer p.callMu.RUnlock()

	if state := p.State(); !state.CanInvoke() {
		return false, errorf("has_hook", p.desc.Name, ErrState, "plugin is %s", state)
	}
	return p.module.Has(hook), nil
}

// String renders a result the way the run command prints it
func (r *HookResult) String() string {
	s := fmt.Sprintf("%s.%s -> %d (%s)", r.Plugin, r.Hook, r.Code, r.Duration.Round(time.Microsecond))
	if len(r.Output) > 0 {
		s += fmt.Sprintf(": %q", r.Output)
	}
	if r.Truncated {
		s += " [truncated]"
	}
	return s
}
