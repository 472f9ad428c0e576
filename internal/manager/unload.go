package manager

import (
	"context"
	"time"

	"inferd/internal/registry"
)

// Unload detaches and closes the active backend. Queued requests fail with
// ErrNoModelLoaded. A generation already running finishes on the handle it
// started with and its result is delivered before the queued failures; the
// handle is closed once it returns. Idempotent.
func (m *Manager) Unload(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.record("unload", m.unloadLocked(ctx))
}

// unloadLocked requires opMu. If ctx ends before the running generation does,
// the rest of the teardown is handed to a goroutine that waits for it and
// ctx.Err is returned.
func (m *Manager) unloadLocked(ctx context.Context) error {
	m.mu.Lock()
	be := m.backend
	m.backend = nil
	queued := m.queue
	m.queue = nil
	queueDepthGauge.Set(0)
	var idle chan struct{}
	if m.inFlight {
		idle = m.idle
	}
	name := m.desc.Name
	m.desc = registry.Descriptor{}
	m.percent = 0
	if !m.state.busy() {
		m.setStateLocked(StateUnloaded)
	}
	m.mu.Unlock()

	if be == nil {
		m.flush(queued)
		return nil
	}

	start := time.Now()
	m.log.Info().Str("event", "unload_start").Str("model", name).Int("flushed", len(queued)).Msg("")
	m.publish(Event{Name: EventUnloadStart, ModelID: name, Fields: map[string]any{"flushed": len(queued)}})

	finish := func(deferred bool) {
		m.flush(queued)
		_ = be.Close()
		m.log.Info().Str("event", "unload_done").Str("model", name).Bool("deferred", deferred).Dur("dur", time.Since(start)).Msg("")
		m.publish(Event{Name: EventUnloadDone, ModelID: name, Fields: map[string]any{"deferred": deferred}})
	}

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			m.deferred.Add(1)
			go func() {
				defer m.deferred.Done()
				<-idle
				finish(true)
			}()
			return ctx.Err()
		}
	}
	finish(false)
	return nil
}

// flush fails requests that were detached from the queue. The worker has
// already posted its last result, so these land after it.
func (m *Manager) flush(queued []*pendingRequest) {
	for _, req := range queued {
		cb, id := req.Callback, req.ID
		m.post(func() { cb(Output{ID: id}, ErrNoModelLoaded) })
	}
}
