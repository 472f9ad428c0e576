package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"inferd/internal/engine"
	"inferd/internal/prompt"
	"inferd/internal/registry"
)

// styleFor picks the prompt layout an engine expects.
func styleFor(k registry.Kind) prompt.Style {
	if k == registry.KindManaged {
		return prompt.Flat
	}
	return prompt.Dialogue
}

// Generate accepts one request. When nothing is running it starts at once;
// otherwise it joins the FIFO queue and the Ack says so. Without a ready
// backend it fails synchronously with a DownloadingError, ErrInitializing or
// ErrNoModelLoaded. cb runs exactly once, on the delivery goroutine.
func (m *Manager) Generate(user, screen string, cb ResultFunc) (Ack, error) {
	if cb == nil {
		cb = func(Output, error) {}
	}
	preamble := m.prefs.Preamble()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Ack{}, ErrClosed
	}
	if err := m.notReadyLocked(); err != nil {
		m.mu.Unlock()
		return Ack{}, err
	}
	req := &pendingRequest{
		ID:       uuid.NewString(),
		Prompt:   prompt.Assemble(styleFor(m.desc.Backend), preamble, screen, user),
		Callback: cb,
		Enqueued: time.Now(),
	}
	if m.inFlight {
		if len(m.queue) >= m.maxQueueDepth {
			depth := len(m.queue)
			m.mu.Unlock()
			return Ack{}, tooBusyError{depth: depth}
		}
		req.Queued = true
		m.queue = append(m.queue, req)
		pos := len(m.queue)
		queueDepthGauge.Set(float64(pos))
		name := m.desc.Name
		m.mu.Unlock()
		m.publish(Event{Name: EventGenerateQueued, ModelID: name, Fields: map[string]any{"id": req.ID, "position": pos}})
		return Ack{ID: req.ID, Queued: true, Position: pos}, nil
	}
	m.inFlight = true
	m.idle = make(chan struct{})
	be, desc := m.backend, m.desc
	m.mu.Unlock()

	m.gen.Go(func() error {
		m.workLoop(req, be, desc)
		return nil
	})
	return Ack{ID: req.ID}, nil
}

// notReadyLocked maps the lifecycle state to the synchronous rejection.
func (m *Manager) notReadyLocked() error {
	switch {
	case m.state == StateDownloading:
		return &DownloadingError{Percent: m.percent}
	case m.state == StateInitializing:
		return ErrInitializing
	case m.backend == nil || m.state != StateReady:
		return ErrNoModelLoaded
	}
	return nil
}

// workLoop runs req and then drains the queue, one request at a time. Each
// request runs on the backend installed when it was taken off the queue.
func (m *Manager) workLoop(req *pendingRequest, be engine.Backend, desc registry.Descriptor) {
	for {
		out, err := m.runOne(req, be, desc)
		cb := req.Callback
		m.post(func() { cb(out, err) })

		m.mu.Lock()
		if len(m.queue) == 0 || m.backend == nil {
			m.inFlight = false
			close(m.idle)
			m.mu.Unlock()
			return
		}
		req = m.queue[0]
		m.queue[0] = nil
		m.queue = m.queue[1:]
		queueDepthGauge.Set(float64(len(m.queue)))
		be, desc = m.backend, m.desc
		m.mu.Unlock()
	}
}

// runOne invokes the engine and contains any panic from it.
func (m *Manager) runOne(req *pendingRequest, be engine.Backend, desc registry.Descriptor) (out Output, err error) {
	out = Output{ID: req.ID, Backend: desc.Backend, Model: desc.Name, Queued: req.Queued}
	m.publish(Event{Name: EventGenerateStart, ModelID: desc.Name, Fields: map[string]any{"id": req.ID, "waited_ms": time.Since(req.Enqueued).Milliseconds()}})
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend panic: %v", r)
		}
		generationsTotal.WithLabelValues(string(desc.Backend), resultLabel(err)).Inc()
		if err != nil {
			m.log.Warn().Str("event", "generate_failed").Str("id", req.ID).Str("model", desc.Name).Err(err).Msg("")
			m.publish(Event{Name: EventGenerateFailed, ModelID: desc.Name, Fields: map[string]any{"id": req.ID, "error": err.Error()}})
			return
		}
		generationDuration.WithLabelValues(string(desc.Backend)).Observe(out.Elapsed.Seconds())
		m.log.Info().Str("event", "generate_done").Str("id", req.ID).Str("model", desc.Name).Dur("elapsed", out.Elapsed).Int("chars", len(out.Text)).Msg("")
		m.publish(Event{Name: EventGenerateDone, ModelID: desc.Name, Fields: map[string]any{"id": req.ID, "elapsed_ms": out.Elapsed.Milliseconds()}})
	}()

	res, err := be.Generate(m.baseCtx, req.Prompt)
	if err != nil {
		return out, err
	}
	out.Text, out.Elapsed = res.Text, res.Elapsed
	return out, nil
}

// GenerateSync submits a request and waits for its outcome or ctx. A request
// abandoned by ctx still runs; its result is discarded.
func (m *Manager) GenerateSync(ctx context.Context, user, screen string) (Output, error) {
	type outcome struct {
		out Output
		err error
	}
	ch := make(chan outcome, 1)
	if _, err := m.Generate(user, screen, func(o Output, err error) { ch <- outcome{o, err} }); err != nil {
		return Output{}, err
	}
	select {
	case r := <-ch:
		return r.out, r.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}
