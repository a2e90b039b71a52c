package plugins

import (
	"fmt"
	"slices"
)

// insert registers p and returns the id of the plugin it shadows, or zero.
// Callers hold the lifecycle lock.
func (m *manager) insert(p *Plugin) (shadowed uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.byName[p.desc.Name]; exists {
		shadowed = old
		m.order = slices.DeleteFunc(m.order, func(id uint64) bool { return id == old })
	}

	m.arena[p.id] = p
	m.byName[p.desc.Name] = p.id
	m.order = append(m.order, p.id)
	m.opts.Metrics.SetActive(len(m.byName))
	return shadowed
}

// remove drops p from the name index and load order. The arena keeps the
// most recent Options.MaxUnloaded removed plugins so stale Refs resolve to
// their final state; older ones are evicted. Callers hold the lifecycle lock.
func (m *manager) remove(p *Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.byName[p.desc.Name] == p.id {
		delete(m.byName, p.desc.Name)
	}
	m.order = slices.DeleteFunc(m.order, func(id uint64) bool { return id == p.id })
	m.opts.Metrics.SetActive(len(m.byName))
	if slices.Contains(m.unloaded, p.id) {
		return
	}

	m.unloaded = append(m.unloaded, p.id)
	if over := len(m.unloaded) - m.opts.MaxUnloaded; over > 0 {
		for _, id := range m.unloaded[:over] {
			delete(m.arena, id)
		}
		m.unloaded = slices.Delete(m.unloaded, 0, over)
	}
}

// registered reports whether a plugin is registered under name
func (m *manager) registered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.byName[name]
	return exists
}

// resolve validates ref and returns its plugin
func (m *manager) resolve(op string, ref Ref) (*Plugin, error) {
	if ref.m == nil {
		return nil, errorf(op, ref.name, ErrState, "zero Ref")
	}
	if ref.m != m {
		return nil, errorf(op, ref.name, ErrState, "Ref belongs to another manager")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, errorf(op, ref.name, ErrState, "manager is closed")
	}

	// Refs are only minted for registered plugins, so a missing id was
	// unloaded and has since been evicted
	p, exists := m.arena[ref.id]
	if !exists {
		return nil, errorf(op, ref.name, ErrState, "plugin #%d was unloaded", ref.id)
	}
	return p, nil
}

// get returns a Ref to the plugin registered under name
func (m *manager) get(name string) (Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return Ref{}, errorf("get", name, ErrState, "manager is closed")
	}

	id, exists := m.byName[name]
	if !exists {
		return Ref{}, newError("get", name, ErrNotFound, nil)
	}
	return Ref{m: m, id: id, name: name}, nil
}

// list returns registered plugins in load order
func (m *manager) list() []Info {
	m.mu.RLock()
	plugins := make([]*Plugin, 0, len(m.order))
	for _, id := range m.order {
		plugins = append(plugins, m.arena[id])
	}
	m.mu.RUnlock()

	result := make([]Info, 0, len(plugins))
	for _, p := range plugins {
		result = append(result, p.info())
	}
	return result
}

// count returns the number of registered plugins
func (m *manager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byName)
}

// recordFailure keeps a bounded history of failed loads
func (m *manager) recordFailure(f Failure) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures = append(m.failures, f)
	if over := len(m.failures) - m.opts.MaxFailures; over > 0 {
		m.failures = slices.Delete(m.failures, 0, over)
	}
}

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.name, r.id)
}
