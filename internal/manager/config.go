package manager

import (
	"context"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/prefs"
	"inferd/internal/probe"
	"inferd/internal/registry"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxQueueDepth  = 32
	defaultWorkers        = 4
	defaultDeliveryBuffer = 256
)

// Acquirer downloads a descriptor's artifact to target.
type Acquirer interface {
	Acquire(ctx context.Context, desc registry.Descriptor, target string, onProgress func(int)) error
}

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	// Catalog defaults to the built-in catalog.
	Catalog *registry.Catalog
	// Prefs defaults to in-memory defaults (nothing selected).
	Prefs prefs.Source
	// Probe defaults to the system probe.
	Probe probe.Probe
	// Acquirer defaults to an acquire.Downloader using Probe for free space.
	Acquirer Acquirer
	// ModelsDir holds local artifacts as <ModelsDir>/<FileName>.
	ModelsDir string
	// Factory defaults to DefaultFactory with zero options.
	Factory BackendFactory
	// MaxQueueDepth bounds requests waiting behind the in-flight one.
	MaxQueueDepth int
	// Workers bounds concurrent background work. One slot is reserved for
	// the generation loop.
	Workers int
	// DeliveryBuffer sizes the callback channel.
	DeliveryBuffer int
	Log            zerolog.Logger
	Publisher      EventPublisher
}

// NewWithConfig constructs a Manager from ManagerConfig and starts its
// delivery goroutine. Call Close to stop it.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.Catalog == nil {
		cfg.Catalog = mustBuiltinCatalog()
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.NewStatic(prefs.Defaults())
	}
	if cfg.Probe == nil {
		cfg.Probe = probe.NewSystem(cfg.Log)
	}
	if cfg.Acquirer == nil {
		cfg.Acquirer = acquire.New(acquire.Config{Space: cfg.Probe, Log: cfg.Log})
	}
	if cfg.Factory == nil {
		cfg.Factory = DefaultFactory(FactoryOptions{Log: cfg.Log})
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = defaultMaxQueueDepth
	}
	if cfg.Workers < 2 {
		cfg.Workers = defaultWorkers
	}
	if cfg.DeliveryBuffer <= 0 {
		cfg.DeliveryBuffer = defaultDeliveryBuffer
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	return newManager(cfg)
}

func mustBuiltinCatalog() *registry.Catalog {
	c, err := registry.NewCatalog(registry.Builtin())
	if err != nil {
		panic("builtin catalog: " + err.Error())
	}
	return c
}
