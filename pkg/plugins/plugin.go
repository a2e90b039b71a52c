package plugins

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/axle/pkg/descriptor"
	"github.com/platinummonkey/axle/pkg/dynlib"
	"github.com/platinummonkey/axle/pkg/hookabi"
)

// Plugin couples a descriptor with an open module and tracks its lifecycle.
// Plugins are owned by their Manager; callers hold Refs.
type Plugin struct {
	id         uint64
	desc       *descriptor.Descriptor
	archive    string
	workDir    string
	objectPath string
	loadedAt   time.Time
	exec       *executor

	// callMu is held shared by native calls and exclusively by unload, so
	// the module is never closed under a running hook
	callMu sync.RWMutex
	module Module

	mu          sync.Mutex
	state       State
	initialized bool
	inFlight    int
	hookCalls   uint64
	lastErr     error
}

func newPlugin(id uint64, desc *descriptor.Descriptor, archive, workDir, objectPath string) *Plugin {
	p := &Plugin{
		id:         id,
		desc:       desc,
		archive:    archive,
		workDir:    workDir,
		objectPath: objectPath,
		state:      StateLoaded,
	}
	if desc.SingleThreaded() {
		p.exec = newExecutor()
	}
	return p
}

// State returns the current lifecycle state
func (p *Plugin) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Plugin) stateLocked() State {
	if p.state == StateInitialized && p.inFlight > 0 {
		return StateRunning
	}
	return p.state
}

func (p *Plugin) info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	info := Info{
		ID:             p.id,
		Name:           p.desc.Name,
		Version:        p.desc.Version,
		Description:    p.desc.Description,
		State:          p.stateLocked(),
		Descriptor:     *p.desc,
		Archive:        p.archive,
		WorkDir:        p.workDir,
		ObjectPath:     p.objectPath,
		LoadedAt:       p.loadedAt,
		Initialized:    p.initialized,
		HookCalls:      p.hookCalls,
		SingleThreaded: p.exec != nil,
	}
	if p.lastErr != nil {
		info.LastError = p.lastErr.Error()
	}
	return info
}

// do runs fn on the plugin's executor thread, or inline for shared plugins
func (p *Plugin) do(fn func()) {
	if p.exec != nil {
		p.exec.run(fn)
		return
	}
	fn()
}

// open opens the object file. Single-threaded plugins are opened on their
// executor so library constructors run on the same thread as every later call.
func (p *Plugin) open(opener Opener) error {
	var (
		mod Module
		err error
	)
	p.do(func() {
		mod, err = opener(p.objectPath)
	})
	if err != nil {
		return err
	}
	p.module = mod
	return nil
}

// call invokes symbol on the module. The caller must hold callMu.
func (p *Plugin) call(symbol string, args ...uintptr) (uintptr, error) {
	var (
		r1  uintptr
		err error
	)
	p.do(func() {
		r1, err = p.module.Call(symbol, args...)
	})
	return r1, err
}

// initialize resolves and calls the entry point. A missing entry point is
// tolerated for format 2 descriptors.
func (p *Plugin) initialize(defaultEntry string, log *logrus.Entry) error {
	entry := p.desc.EntryPointOr(defaultEntry)

	p.callMu.RLock()
	defer p.callMu.RUnlock()

	if !p.module.Has(entry) {
		if p.desc.RequiresEntryPoint() {
			return newError("load", p.desc.Name, ErrSymbolNotFound,
				fmt.Errorf("entry point %q is not exported", entry))
		}
		log.Debugf("No entry point %q, skipping initialization", entry)
	} else {
		r1, err := p.call(entry)
		if err != nil {
			return newError("load", p.desc.Name, moduleErrorKind(err), err)
		}
		if code := hookabi.Code(r1); code != 0 {
			return errorf("load", p.desc.Name, ErrInvocation, "entry point %q returned %d", entry, code)
		}
		p.mu.Lock()
		p.initialized = true
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.state = StateInitialized
	p.loadedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// beginCall marks a hook call in flight. The caller must hold callMu shared.
func (p *Plugin) beginCall() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state := p.stateLocked(); !state.CanInvoke() {
		return errorf("invoke", p.desc.Name, ErrState, "plugin is %s", state)
	}
	p.inFlight++
	return nil
}

func (p *Plugin) endCall(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inFlight--
	p.hookCalls++
	if err != nil {
		p.lastErr = err
	}
}

// shutdown runs the destructor when the plugin was initialized, closes the
// module, stops the executor and removes the work directory. The resulting
// state is Unloaded, or Failed when the module could not be closed.
// Every step runs even when an earlier one fails.
func (p *Plugin) shutdown(destructor string, keepFiles bool, final State, log *logrus.Entry) error {
	p.callMu.Lock()
	defer p.callMu.Unlock()

	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()

	var errs []error

	if p.module != nil {
		if initialized {
			name := p.desc.DestructorOr(destructor)
			if p.module.Has(name) {
				if _, err := p.call(name); err != nil {
					errs = append(errs, fmt.Errorf("destructor %q: %w", name, err))
				}
			} else {
				log.Warnf("Plugin has no destructor %q", name)
			}
		}

		var closeErr error
		p.do(func() {
			closeErr = p.module.Close()
		})
		if closeErr != nil {
			errs = append(errs, fmt.Errorf("failed to close module: %w", closeErr))
			final = StateFailed
		}
		p.module = nil
	}

	if p.exec != nil {
		p.exec.stop()
	}

	if !keepFiles && p.workDir != "" {
		if err := os.RemoveAll(p.workDir); err != nil {
			errs = append(errs, fmt.Errorf("failed to remove work directory: %w", err))
		}
	}

	err := errors.Join(errs...)

	p.mu.Lock()
	p.state = final
	p.initialized = false
	if err != nil {
		p.lastErr = err
	}
	p.mu.Unlock()

	return err
}

// moduleErrorKind maps module call errors onto Manager error kinds
func moduleErrorKind(err error) error {
	switch {
	case errors.Is(err, dynlib.ErrSymbolNotFound), errors.Is(err, dynlib.ErrInvalidSymbolName):
		return ErrSymbolNotFound
	case errors.Is(err, dynlib.ErrClosed):
		return ErrState
	default:
		return ErrInvocation
	}
}
