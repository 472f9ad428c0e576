package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// NativeOptions configure model and context creation on the native library.
type NativeOptions struct {
	ContextSize int
	BatchSize   int
	GPULayers   int
	MaxTokens   int
	TopK        int
	TopP        float32
	Temperature float32
	// TimeBudget stops token sampling early and returns the text so far.
	TimeBudget time.Duration
}

// DefaultNativeOptions are the stock settings for on-device GGUF models.
func DefaultNativeOptions() NativeOptions {
	return NativeOptions{
		ContextSize: 2048,
		BatchSize:   512,
		MaxTokens:   512,
		TopK:        40,
		TopP:        0.9,
		Temperature: 0.7,
		TimeBudget:  30 * time.Second,
	}
}

func (o NativeOptions) withDefaults() NativeOptions {
	d := DefaultNativeOptions()
	if o.ContextSize <= 0 {
		o.ContextSize = d.ContextSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = d.MaxTokens
	}
	if o.TopK <= 0 {
		o.TopK = d.TopK
	}
	if o.TopP <= 0 {
		o.TopP = d.TopP
	}
	if o.Temperature <= 0 {
		o.Temperature = d.Temperature
	}
	if o.TimeBudget <= 0 {
		o.TimeBudget = d.TimeBudget
	}
	return o
}

// NativeLibrary is the foreign-function surface the native engine drives.
// References it returns are opaque to everything but the library itself.
type NativeLibrary interface {
	// Err is non-nil when the shared library failed to load at process start.
	Err() error
	LoadModel(path string, opts NativeOptions) (any, error)
	NewContext(model any, opts NativeOptions) (any, error)
	Generate(model, ctx any, prompt string, opts NativeOptions) (string, error)
	FreeContext(ctx any)
	FreeModel(model any)
}

// handle owns one native reference. It can only be created inside this
// package and releases its reference at most once.
type handle struct {
	once     sync.Once
	released atomic.Bool
	ref      any
	release  func(any)
}

func newHandle(ref any, release func(any)) *handle {
	return &handle{ref: ref, release: release}
}

// Release frees the reference. Later calls are no-ops.
func (h *handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.released.Store(true)
		h.release(h.ref)
		h.ref = nil
	})
}

// live is safe to call without the engine lock.
func (h *handle) live() bool { return h != nil && !h.released.Load() }

// Native is the FFI-backed engine. It owns a model handle and a context
// handle, acquired in that order and released in reverse.
type Native struct {
	lib  NativeLibrary
	opts NativeOptions
	log  zerolog.Logger

	mu     sync.Mutex
	model  *handle
	ctx    *handle
	closed atomic.Bool
}

// NewNative loads path through lib. If context creation fails the model handle
// is released before the error is returned.
func NewNative(lib NativeLibrary, path string, opts NativeOptions, log zerolog.Logger) (n *Native, err error) {
	if lib == nil {
		return nil, ErrLibraryUnavailable
	}
	if lerr := lib.Err(); lerr != nil {
		return nil, fmt.Errorf("%w: %v", ErrLibraryUnavailable, lerr)
	}
	opts = opts.withDefaults()

	var model *handle
	defer func() {
		if r := recover(); r != nil {
			model.Release()
			n, err = nil, constructionErr("native library panic", fmt.Errorf("%v", r))
		}
	}()

	mref, err := lib.LoadModel(path, opts)
	if err != nil {
		return nil, constructionErr("load model", err)
	}
	model = newHandle(mref, lib.FreeModel)

	cref, err := lib.NewContext(mref, opts)
	if err != nil {
		log.Warn().Str("event", "native_partial_init").Str("path", path).Msg("context creation failed, releasing model")
		model.Release()
		return nil, constructionErr("create context", err)
	}
	return &Native{lib: lib, opts: opts, log: log, model: model, ctx: newHandle(cref, lib.FreeContext)}, nil
}

func (n *Native) Generate(ctx context.Context, prompt string) (Result, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.readyLocked() {
		return Result{}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	return timed(func() (text string, err error) {
		defer func() {
			if r := recover(); r != nil {
				text, err = "", fmt.Errorf("native generate panic: %v", r)
			}
		}()
		return n.lib.Generate(n.model.ref, n.ctx.ref, prompt, n.opts)
	})
}

// IsReady does not wait for a running generation.
func (n *Native) IsReady() bool {
	return !n.closed.Load() && n.lib.Err() == nil && n.model.live() && n.ctx.live()
}

func (n *Native) readyLocked() bool { return n.IsReady() }

// Close waits for a running generation, then releases the context and the model.
func (n *Native) Close() error {
	n.closed.Store(true)
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ctx.Release()
	n.model.Release()
	return nil
}
