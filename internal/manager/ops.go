package manager

import (
	"context"
	"errors"
)

// Start initializes the selected backend on the lifecycle pool.
func (m *Manager) Start() {
	if err := m.Go("initialize", m.Initialize); err != nil {
		m.log.Warn().Str("event", "start_skipped").Err(err).Msg("")
	}
}

// Switch unloads the current backend and initializes the selected one.
func (m *Manager) Switch(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if err := m.unloadLocked(ctx); err != nil {
		return m.record("switch", err)
	}
	return m.record("switch", m.initLocked(ctx, false))
}

// SwitchTo selects name for this process, overriding the preference, and
// switches to it. An empty name drops the override.
func (m *Manager) SwitchTo(ctx context.Context, name string) error {
	if name != "" {
		if _, ok := m.catalog.Lookup(name); !ok {
			return ErrModelNotFound(name)
		}
	}
	m.mu.Lock()
	m.override = name
	m.mu.Unlock()
	return m.Switch(ctx)
}

// Reload initializes only when nothing is installed and nothing is underway.
func (m *Manager) Reload(ctx context.Context) error {
	if !m.reloadable() {
		return nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if !m.reloadable() {
		return nil
	}
	return m.record("reload", m.initLocked(ctx, false))
}

func (m *Manager) reloadable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend == nil && !m.state.busy()
}

// Go schedules op on the lifecycle pool with the manager's base context and
// returns immediately. The outcome is logged and visible through State.
func (m *Manager) Go(name string, op func(context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	ok := m.lifecycle.TryGo(func() error {
		if err := op(m.baseCtx); err != nil && !errors.Is(err, ErrCellularConsentRequired) {
			m.log.Warn().Str("event", "op_failed").Str("op", name).Err(err).Msg("")
		}
		return nil
	})
	if !ok {
		return busyOpError{op: name}
	}
	return nil
}
