package manager

import (
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// Snapshot returns a read-only view of the manager state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		State:      m.state,
		Percent:    m.percent,
		Model:      m.desc.Name,
		Backend:    m.desc.Backend,
		InFlight:   m.inFlight,
		QueueDepth: len(m.queue),
	}
	if s.Model == "" {
		d := m.resolveLocked()
		s.Model, s.Backend = d.Name, d.Backend
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// Status builds the response for /status.
func (m *Manager) Status() types.StatusResponse {
	s := m.Snapshot()
	now := time.Now()
	return types.StatusResponse{
		State:          string(s.State),
		Ready:          m.Ready(),
		Model:          s.Model,
		Backend:        string(s.Backend),
		Percent:        s.Percent,
		InFlight:       s.InFlight,
		QueueLen:       s.QueueDepth,
		MaxQueueDepth:  m.maxQueueDepth,
		LastError:      s.LastError,
		Unmetered:      m.probe.IsUnmeteredNetwork(),
		Engines:        types.EngineSupport{Managed: engine.ManagedBuilt, Native: engine.NativeBuilt},
		UptimeSeconds:  int64(now.Sub(m.startTime).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
}
