package manager

import (
	"fmt"

	"github.com/rs/zerolog"

	"inferd/internal/engine"
	"inferd/internal/prefs"
	"inferd/internal/registry"
)

// BackendFactory builds the engine for desc. path is the local artifact (empty
// for remote); remote returns the current endpoint preferences and may be
// retained by the engine to pick up later edits.
type BackendFactory func(desc registry.Descriptor, path string, remote func() prefs.RemoteEndpoint) (engine.Backend, error)

// FactoryOptions configure DefaultFactory.
type FactoryOptions struct {
	Managed engine.ManagedOptions
	Native  engine.NativeOptions
	// NativeLibrary is consulted lazily; nil means engine.LoadNativeLibrary(LibDir).
	NativeLibrary engine.NativeLibrary
	LibDir        string
	Log           zerolog.Logger
}

// DefaultFactory builds the real engines.
func DefaultFactory(o FactoryOptions) BackendFactory {
	return func(desc registry.Descriptor, path string, remote func() prefs.RemoteEndpoint) (engine.Backend, error) {
		switch desc.Backend {
		case registry.KindManaged:
			b, err := engine.NewManaged(path, o.Managed)
			if err != nil {
				return nil, err
			}
			return b, nil
		case registry.KindNative:
			lib := o.NativeLibrary
			if lib == nil {
				lib = engine.LoadNativeLibrary(o.LibDir)
			}
			b, err := engine.NewNative(lib, path, o.Native, o.Log)
			if err != nil {
				return nil, err
			}
			return b, nil
		case registry.KindRemote:
			return engine.NewRemote(engine.RemoteConfig{Endpoint: remote, Log: o.Log}), nil
		default:
			return nil, fmt.Errorf("unknown backend kind %q", desc.Backend)
		}
	}
}
