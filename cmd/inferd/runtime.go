package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/manager"
	"inferd/internal/prefs"
	"inferd/internal/probe"
	"inferd/internal/registry"
)

// appRuntime is the wired object graph behind every subcommand.
type appRuntime struct {
	cfg     config.Config
	log     zerolog.Logger
	catalog *registry.Catalog
	prefs   *prefs.File
	acq     *acquire.Downloader
	mgr     *manager.Manager
}

// buildCatalog merges the built-in models, an optional catalog file and any
// sideloaded artifacts in the models directory.
func buildCatalog(cfg config.Config) (*registry.Catalog, error) {
	entries := registry.Builtin()
	if cfg.CatalogFile != "" {
		extra, err := registry.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, err
		}
		entries = registry.Merge(entries, extra)
	}
	side, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	return registry.NewCatalog(registry.Merge(entries, side))
}

func openRuntime(cfg config.Config, log zerolog.Logger, pub manager.EventPublisher) (*appRuntime, error) {
	cat, err := buildCatalog(cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	pf, err := prefs.OpenFile(cfg.PrefsFile, log.With().Str("component", "prefs").Logger())
	if err != nil {
		return nil, fmt.Errorf("preferences: %w", err)
	}
	pr := probe.NewSystem(log.With().Str("component", "probe").Logger())
	pr.NetworkMode = cfg.NetworkMode
	acq := acquire.New(acquire.Config{
		Space:    pr,
		Headroom: uint64(cfg.HeadroomMB) << 20,
		Log:      log.With().Str("component", "acquire").Logger(),
	})
	factory := manager.DefaultFactory(manager.FactoryOptions{
		Managed: engine.ManagedOptions{ContextSize: cfg.ContextSize, Threads: cfg.Threads},
		Native:  engine.NativeOptions{ContextSize: cfg.ContextSize, GPULayers: cfg.GPULayers},
		LibDir:  cfg.LibDir,
		Log:     log.With().Str("component", "engine").Logger(),
	})
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Catalog:       cat,
		Prefs:         pf,
		Probe:         pr,
		Acquirer:      acq,
		ModelsDir:     cfg.ModelsDir,
		Factory:       factory,
		MaxQueueDepth: cfg.MaxQueueDepth,
		Workers:       cfg.Workers,
		Log:           log.With().Str("component", "manager").Logger(),
		Publisher:     pub,
	})
	return &appRuntime{cfg: cfg, log: log, catalog: cat, prefs: pf, acq: acq, mgr: mgr}, nil
}

func (r *appRuntime) Close() error { return r.mgr.Close() }
