package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"inferd/internal/common/fsutil"
	"inferd/internal/engine"
	"inferd/internal/registry"
)

// Initialize brings up the selected backend. It is a no-op while another
// initialization is underway or a ready backend is installed. A local artifact
// that is missing or undersized is removed and re-acquired, unless the network
// is metered, in which case ErrCellularConsentRequired is returned without any
// network I/O. Construction failures leave the manager failed and are returned.
func (m *Manager) Initialize(ctx context.Context) error {
	if m.initPending() {
		return nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.record("initialize", m.initLocked(ctx, false))
}

// ExplicitDownload is Initialize with the metered-network gate lifted. A valid
// artifact on disk is never deleted.
func (m *Manager) ExplicitDownload(ctx context.Context) error {
	if m.initPending() {
		return nil
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.record("download", m.initLocked(ctx, true))
}

// initPending is the unlocked fast path: a caller arriving mid-initialization
// must not queue up behind it.
func (m *Manager) initPending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.busy()
}

// initLocked requires opMu.
func (m *Manager) initLocked(ctx context.Context, consent bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state.busy() {
		m.mu.Unlock()
		return nil
	}
	be := m.backend
	m.mu.Unlock()

	if be != nil {
		if be.IsReady() {
			return nil
		}
		// A stale handle is closed before anything replaces it.
		if err := m.unloadLocked(ctx); err != nil {
			return err
		}
	}

	// Background work is also stopped by Close.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.baseCtx, cancel)
	defer stop()

	m.mu.Lock()
	desc := m.resolveLocked()
	m.desc = desc
	m.percent = 0
	m.lastErr = nil
	m.setStateLocked(StateInitializing)
	m.mu.Unlock()

	start := time.Now()
	m.log.Info().Str("event", "init_start").Str("model", desc.Name).Str("backend", string(desc.Backend)).Msg("")
	m.publish(Event{Name: EventInitStart, ModelID: desc.Name, Fields: map[string]any{"backend": string(desc.Backend)}})

	var path string
	if desc.Backend.Local() {
		path = m.artifactPath(desc)
		if !m.artifactValid(desc) {
			if err := m.acquireLocked(ctx, desc, path, consent); err != nil {
				return err
			}
		}
	}

	b, err := m.build(desc, path)
	if err != nil {
		return m.fail(desc, err)
	}
	if !b.IsReady() {
		_ = b.Close()
		if desc.Backend == registry.KindRemote {
			return m.fail(desc, ErrRemoteNotConfigured)
		}
		return m.fail(desc, engine.ErrNotReady)
	}

	m.mu.Lock()
	m.backend = b
	m.setStateLocked(StateReady)
	m.mu.Unlock()
	m.log.Info().Str("event", "init_ready").Str("model", desc.Name).Dur("dur", time.Since(start)).Msg("")
	m.publish(Event{Name: EventInitReady, ModelID: desc.Name, Fields: map[string]any{"backend": string(desc.Backend)}})
	return nil
}

// acquireLocked removes any stale artifact and downloads a fresh one.
func (m *Manager) acquireLocked(ctx context.Context, desc registry.Descriptor, path string, consent bool) error {
	if err := fsutil.RemoveIfExists(path); err != nil {
		return m.fail(desc, fmt.Errorf("remove stale artifact: %w", err))
	}
	if !consent && !m.probe.IsUnmeteredNetwork() {
		m.mu.Lock()
		m.setStateLocked(StateUnloaded)
		m.lastErr = ErrCellularConsentRequired
		m.mu.Unlock()
		m.log.Info().Str("event", "consent_required").Str("model", desc.Name).Msg("metered network; waiting for explicit download")
		m.publish(Event{Name: EventConsentRequired, ModelID: desc.Name})
		return ErrCellularConsentRequired
	}

	m.mu.Lock()
	m.setStateLocked(StateDownloading)
	m.percent = 0
	m.mu.Unlock()
	m.publish(Event{Name: EventDownloadStart, ModelID: desc.Name, Fields: map[string]any{"url": desc.URL}})

	if err := m.acq.Acquire(ctx, desc, path, func(p int) { m.onProgress(desc, p) }); err != nil {
		return m.fail(desc, err)
	}
	m.publish(Event{Name: EventDownloadDone, ModelID: desc.Name})
	return nil
}

// onProgress runs on the acquiring worker and forwards to the delivery goroutine.
func (m *Manager) onProgress(desc registry.Descriptor, p int) {
	m.mu.Lock()
	m.percent = p
	fn := m.progressFn
	m.mu.Unlock()
	m.publish(Event{Name: EventDownloadProgress, ModelID: desc.Name, Fields: map[string]any{"percent": p}})
	if fn != nil {
		m.post(func() { fn(p) })
	}
}

// build constructs the engine, containing any panic from native code.
func (m *Manager) build(desc registry.Descriptor, path string) (b engine.Backend, err error) {
	defer func() {
		if r := recover(); r != nil {
			b, err = nil, fmt.Errorf("%w: panic: %v", engine.ErrConstruction, r)
		}
	}()
	return m.factory(desc, path, m.prefs.RemoteEndpoint)
}

// fail records err, moves to failed and returns err.
func (m *Manager) fail(desc registry.Descriptor, err error) error {
	m.mu.Lock()
	m.lastErr = err
	m.setStateLocked(StateFailed)
	m.mu.Unlock()
	m.log.Error().Str("event", "init_failed").Str("model", desc.Name).Err(err).Msg("")
	m.publish(Event{Name: EventInitFailed, ModelID: desc.Name, Fields: map[string]any{"error": err.Error()}})
	return err
}

// record counts a lifecycle operation outcome and passes err through.
func (m *Manager) record(op string, err error) error {
	switch {
	case err == nil:
		lifecycleOpsTotal.WithLabelValues(op, "ok").Inc()
	case errors.Is(err, ErrCellularConsentRequired):
		lifecycleOpsTotal.WithLabelValues(op, "consent").Inc()
	default:
		lifecycleOpsTotal.WithLabelValues(op, "error").Inc()
	}
	return err
}
