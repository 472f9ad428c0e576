package manager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"inferd/internal/engine"
	"inferd/internal/prefs"
	"inferd/internal/registry"
)

// createModelFile creates a file of exactly size bytes and returns its path.
func createModelFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create file: %v", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return p
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func testCatalog(t *testing.T) *registry.Catalog {
	t.Helper()
	c, err := registry.NewCatalog([]registry.Descriptor{
		{Name: "Local A", FileName: "a.gguf", URL: "http://invalid.test/a.gguf", MinValidBytes: 1000, Backend: registry.KindManaged},
		{Name: "Local B", FileName: "b.gguf", URL: "http://invalid.test/b.gguf", MinValidBytes: 1000, Backend: registry.KindNative},
		{Name: "Remote", Backend: registry.KindRemote},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

type fakeProbe struct {
	unmetered atomic.Bool
	free      uint64
}

func (p *fakeProbe) IsUnmeteredNetwork() bool     { return p.unmetered.Load() }
func (p *fakeProbe) AvailableBytes(string) uint64 { return p.free }

func unmeteredProbe() *fakeProbe {
	p := &fakeProbe{free: 1 << 40}
	p.unmetered.Store(true)
	return p
}

// fakeAcquirer writes size bytes to the target and counts calls.
type fakeAcquirer struct {
	calls    atomic.Int32
	size     int
	err      error
	sawStale atomic.Bool
}

func (a *fakeAcquirer) Acquire(_ context.Context, _ registry.Descriptor, target string, onProgress func(int)) error {
	a.calls.Add(1)
	if _, err := os.Stat(target); err == nil {
		a.sawStale.Store(true)
	}
	if a.err != nil {
		return a.err
	}
	onProgress(50)
	if err := os.WriteFile(target, make([]byte, a.size), 0o644); err != nil {
		return err
	}
	onProgress(100)
	return nil
}

// fakeBackend records concurrency and lifetime.
type fakeBackend struct {
	kind   registry.Kind
	path   string
	delay  time.Duration
	gate   chan struct{}
	fail   error
	panics bool

	live      *atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
	closed    atomic.Bool
	closes    atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (b *fakeBackend) Generate(_ context.Context, prompt string) (engine.Result, error) {
	n := b.active.Add(1)
	defer b.active.Add(-1)
	for {
		cur := b.maxActive.Load()
		if n <= cur || b.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	b.mu.Lock()
	b.prompts = append(b.prompts, prompt)
	b.mu.Unlock()
	if b.gate != nil {
		<-b.gate
	}
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.panics {
		panic("engine exploded")
	}
	if b.fail != nil {
		return engine.Result{}, b.fail
	}
	return engine.Result{Text: "reply:" + prompt, Elapsed: time.Millisecond}, nil
}

func (b *fakeBackend) IsReady() bool { return !b.closed.Load() }

func (b *fakeBackend) Close() error {
	if b.closed.CompareAndSwap(false, true) && b.live != nil {
		b.live.Add(-1)
	}
	b.closes.Add(1)
	return nil
}

func (b *fakeBackend) Prompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.prompts...)
}

// fakeFactory hands out fakeBackends and tracks how many are live.
type fakeFactory struct {
	mu      sync.Mutex
	live    atomic.Int32
	made    []*fakeBackend
	err     error
	panics  bool
	prepare func(*fakeBackend)
}

func (f *fakeFactory) build(desc registry.Descriptor, path string, remote func() prefs.RemoteEndpoint) (engine.Backend, error) {
	if f.panics {
		panic("ffi crash")
	}
	if f.err != nil {
		return nil, f.err
	}
	if desc.Backend == registry.KindRemote && !remote().Configured() {
		b := &fakeBackend{kind: desc.Backend}
		b.closed.Store(true)
		return b, nil
	}
	b := &fakeBackend{kind: desc.Backend, path: path, live: &f.live}
	if f.prepare != nil {
		f.prepare(b)
	}
	f.live.Add(1)
	f.mu.Lock()
	f.made = append(f.made, b)
	f.mu.Unlock()
	return b, nil
}

func (f *fakeFactory) Last() *fakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

type harness struct {
	m       *Manager
	dir     string
	probe   *fakeProbe
	acq     *fakeAcquirer
	factory *fakeFactory
	prefs   *prefs.Static
	pub     *MemoryPublisher
}

func newHarness(t *testing.T, selected string, mut ...func(*ManagerConfig)) *harness {
	t.Helper()
	h := &harness{
		dir:     t.TempDir(),
		probe:   unmeteredProbe(),
		acq:     &fakeAcquirer{size: 2000},
		factory: &fakeFactory{},
		pub:     NewMemoryPublisher(),
	}
	p := prefs.Defaults()
	p.SelectedModel = selected
	h.prefs = prefs.NewStatic(p)
	cfg := ManagerConfig{
		Catalog:   testCatalog(t),
		Prefs:     h.prefs,
		Probe:     h.probe,
		Acquirer:  h.acq,
		ModelsDir: h.dir,
		Factory:   h.factory.build,
		Publisher: h.pub,
	}
	for _, f := range mut {
		f(&cfg)
	}
	h.m = NewWithConfig(cfg)
	t.Cleanup(func() { _ = h.m.Close() })
	return h
}

func (h *harness) hasEvent(name string) bool {
	for _, n := range h.pub.Names() {
		if n == name {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

var errBoom = errors.New("boom")
