package manager

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"inferd/internal/common/fsutil"
	"inferd/internal/engine"
	"inferd/internal/prefs"
	"inferd/internal/probe"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

// Manager owns at most one active backend and serializes generation on it.
type Manager struct {
	catalog       *registry.Catalog
	prefs         prefs.Source
	probe         probe.Probe
	acq           Acquirer
	factory       BackendFactory
	modelsDir     string
	maxQueueDepth int
	log           zerolog.Logger

	mu         sync.Mutex
	state      State
	percent    int
	desc       registry.Descriptor
	backend    engine.Backend
	inFlight   bool
	idle       chan struct{} // closed when the current worker loop exits
	queue      []*pendingRequest
	lastErr    error
	override   string
	progressFn func(int)
	publisher  EventPublisher
	closed     bool

	// opMu serializes lifecycle operations.
	opMu sync.Mutex

	baseCtx     context.Context
	cancel      context.CancelFunc
	lifecycle   *errgroup.Group
	gen         *errgroup.Group
	deferred    sync.WaitGroup // unload teardowns outliving their caller
	deliver     chan func()
	deliverDone chan struct{}
	startTime   time.Time
}

func newManager(cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		catalog:       cfg.Catalog,
		prefs:         cfg.Prefs,
		probe:         cfg.Probe,
		acq:           cfg.Acquirer,
		factory:       cfg.Factory,
		modelsDir:     cfg.ModelsDir,
		maxQueueDepth: cfg.MaxQueueDepth,
		log:           cfg.Log,
		state:         StateUnloaded,
		publisher:     cfg.Publisher,
		baseCtx:       ctx,
		cancel:        cancel,
		lifecycle:     new(errgroup.Group),
		gen:           new(errgroup.Group),
		deliver:       make(chan func(), cfg.DeliveryBuffer),
		deliverDone:   make(chan struct{}),
		startTime:     time.Now(),
	}
	m.lifecycle.SetLimit(cfg.Workers - 1)
	m.gen.SetLimit(1)
	observeState(StateUnloaded)
	go m.deliveryLoop()
	return m
}

// SetEventPublisher replaces the publisher; nil restores the no-op default.
func (m *Manager) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	m.mu.Lock()
	m.publisher = p
	m.mu.Unlock()
}

// SetProgressListener registers fn for download percentages. Calls land on
// the delivery goroutine. nil unregisters.
func (m *Manager) SetProgressListener(fn func(int)) {
	m.mu.Lock()
	m.progressFn = fn
	m.mu.Unlock()
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Progress returns the last download percentage.
func (m *Manager) Progress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.percent
}

// Ready reports whether generation requests will be accepted.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	st, be := m.state, m.backend
	m.mu.Unlock()
	return st == StateReady && be != nil && be.IsReady()
}

// Descriptor returns the descriptor of the active or pending backend, falling
// back to the currently selected one.
func (m *Manager) Descriptor() registry.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.desc.Name != "" {
		return m.desc
	}
	return m.resolveLocked()
}

// ListModels returns the catalog with install and selection flags.
func (m *Manager) ListModels() []types.Model {
	m.mu.Lock()
	selected := m.resolveLocked().Name
	m.mu.Unlock()
	list := m.catalog.List()
	out := make([]types.Model, 0, len(list))
	for _, d := range list {
		out = append(out, types.Model{
			Name:        d.Name,
			DisplayName: d.FormattedName(),
			Backend:     string(d.Backend),
			FileName:    d.FileName,
			Description: d.Description,
			Vision:      d.Vision,
			Installed:   d.Backend == registry.KindRemote || m.artifactValid(d),
			Selected:    d.Name == selected,
		})
	}
	return out
}

// RemoteModels lists the model ids advertised by the configured remote endpoint.
func (m *Manager) RemoteModels(ctx context.Context) ([]string, error) {
	ep := m.prefs.RemoteEndpoint()
	if !ep.Configured() {
		return nil, ErrRemoteNotConfigured
	}
	r := engine.NewRemote(engine.RemoteConfig{BaseURL: ep.URL, APIKey: ep.APIKey, Model: ep.Model, Log: m.log})
	defer r.Close()
	return r.ListModels(ctx)
}

// resolveLocked picks the descriptor to initialize: an explicit override,
// else the preference, else the first catalog entry.
func (m *Manager) resolveLocked() registry.Descriptor {
	name := m.override
	if name == "" {
		name = m.prefs.SelectedModel()
	}
	return m.catalog.Find(name)
}

func (m *Manager) artifactPath(d registry.Descriptor) string {
	return filepath.Join(m.modelsDir, d.FileName)
}

// artifactValid reports whether the local artifact exists and meets the
// minimum size.
func (m *Manager) artifactValid(d registry.Descriptor) bool {
	if d.FileName == "" {
		return false
	}
	n := fsutil.FileSize(m.artifactPath(d))
	return n >= 0 && n >= d.MinValidBytes
}

// setStateLocked must be called with mu held.
func (m *Manager) setStateLocked(s State) {
	m.state = s
	observeState(s)
}

// publish sends e outside the state lock.
func (m *Manager) publish(e Event) {
	m.mu.Lock()
	p := m.publisher
	m.mu.Unlock()
	if e.Fields == nil {
		e.Fields = map[string]any{}
	}
	p.Publish(e)
}

// Close unloads the backend, waits for background work and stops the
// delivery goroutine. Pending callbacks are delivered before it returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.opMu.Lock()
	err := m.unloadLocked(context.Background())
	m.opMu.Unlock()

	_ = m.lifecycle.Wait()
	_ = m.gen.Wait()
	m.deferred.Wait()
	close(m.deliver)
	<-m.deliverDone
	m.log.Info().Str("event", "manager_closed").Msg("")
	return err
}
