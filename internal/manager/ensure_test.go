package manager

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"inferd/internal/acquire"
	"inferd/internal/engine"
	"inferd/internal/prefs"
	"inferd/internal/registry"
)

func TestInitialize_AcquiresMissingArtifact(t *testing.T) {
	h := newHarness(t, "Local A")
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := h.acq.calls.Load(); got != 1 {
		t.Fatalf("acquire calls = %d, want 1", got)
	}
	if !h.m.Ready() || h.m.State() != StateReady {
		t.Fatalf("not ready: %+v", h.m.Snapshot())
	}
	if got, want := h.factory.Last().path, filepath.Join(h.dir, "a.gguf"); got != want {
		t.Fatalf("engine path = %q, want %q", got, want)
	}
	for _, name := range []string{EventInitStart, EventDownloadStart, EventDownloadProgress, EventDownloadDone, EventInitReady} {
		if !h.hasEvent(name) {
			t.Fatalf("missing event %q in %v", name, h.pub.Names())
		}
	}
}

func TestInitialize_UndersizedArtifactIsReacquired(t *testing.T) {
	cat, err := registry.NewCatalog([]registry.Descriptor{{
		Name: "Big", FileName: "big.gguf", URL: "http://invalid.test/big.gguf",
		MinValidBytes: 1_300_000_000, Backend: registry.KindManaged,
	}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	h := newHarness(t, "Big", func(c *ManagerConfig) { c.Catalog = cat })
	createModelFile(t, h.dir, "big.gguf", 500_000)

	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := h.acq.calls.Load(); got != 1 {
		t.Fatalf("acquire calls = %d, want 1", got)
	}
	if h.acq.sawStale.Load() {
		t.Fatalf("stale artifact was still present when acquisition began")
	}
}

func TestInitialize_ValidArtifactSkipsDownload(t *testing.T) {
	h := newHarness(t, "Local A")
	createModelFile(t, h.dir, "a.gguf", 4096)
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if got := h.acq.calls.Load(); got != 0 {
		t.Fatalf("acquire calls = %d, want 0", got)
	}
	if h.hasEvent(EventDownloadStart) {
		t.Fatalf("unexpected download_start")
	}
}

func TestInitialize_MeteredRequiresConsent(t *testing.T) {
	var hits atomic.Int32
	body := make([]byte, 2000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	cat, err := registry.NewCatalog([]registry.Descriptor{{
		Name: "Local A", FileName: "a.gguf", URL: srv.URL + "/a.gguf", MinValidBytes: 1000, Backend: registry.KindManaged,
	}})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	pr := &fakeProbe{free: 1 << 40}
	h := newHarness(t, "Local A", func(c *ManagerConfig) {
		c.Catalog = cat
		c.Probe = pr
		c.Acquirer = acquire.New(acquire.Config{Space: pr})
	})

	err = h.m.Initialize(testCtx(t))
	if !errors.Is(err, ErrCellularConsentRequired) {
		t.Fatalf("err = %v, want ErrCellularConsentRequired", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("HTTP requests = %d, want 0", n)
	}
	if st := h.m.State(); st != StateUnloaded {
		t.Fatalf("state = %s, want unloaded", st)
	}
	if !h.hasEvent(EventConsentRequired) {
		t.Fatalf("missing consent_required event: %v", h.pub.Names())
	}
	if _, err := os.Stat(filepath.Join(h.dir, "a.gguf")); !os.IsNotExist(err) {
		t.Fatalf("artifact should not exist: %v", err)
	}

	if err := h.m.ExplicitDownload(testCtx(t)); err != nil {
		t.Fatalf("ExplicitDownload: %v", err)
	}
	if hits.Load() == 0 {
		t.Fatalf("explicit download made no request")
	}
	if !h.m.Ready() {
		t.Fatalf("not ready after explicit download: %+v", h.m.Snapshot())
	}
}

func TestExplicitDownload_KeepsValidArtifact(t *testing.T) {
	h := newHarness(t, "Local A")
	p := createModelFile(t, h.dir, "a.gguf", 4096)
	if err := h.m.ExplicitDownload(testCtx(t)); err != nil {
		t.Fatalf("ExplicitDownload: %v", err)
	}
	if h.acq.calls.Load() != 0 {
		t.Fatalf("valid artifact was re-acquired")
	}
	if fi, err := os.Stat(p); err != nil || fi.Size() != 4096 {
		t.Fatalf("artifact changed: %v %v", fi, err)
	}
}

func TestInitialize_NoopWhenReady(t *testing.T) {
	h := newHarness(t, "Local A")
	for i := 0; i < 3; i++ {
		if err := h.m.Initialize(testCtx(t)); err != nil {
			t.Fatalf("Initialize #%d: %v", i, err)
		}
	}
	if n := len(h.factory.made); n != 1 {
		t.Fatalf("backends built = %d, want 1", n)
	}
}

func TestInitialize_ConstructionFailure(t *testing.T) {
	h := newHarness(t, "Local A")
	h.factory.err = errors.Join(engine.ErrConstruction, errBoom)
	err := h.m.Initialize(testCtx(t))
	if !engine.IsConstruction(err) {
		t.Fatalf("err = %v, want construction error", err)
	}
	snap := h.m.Snapshot()
	if snap.State != StateFailed || snap.LastError == "" {
		t.Fatalf("snapshot = %+v, want failed with error", snap)
	}
	if !h.hasEvent(EventInitFailed) {
		t.Fatalf("missing init_failed event")
	}
	if _, err := h.m.Generate("hi", "", nil); !errors.Is(err, ErrNoModelLoaded) {
		t.Fatalf("Generate err = %v, want ErrNoModelLoaded", err)
	}

	// A later attempt succeeds once the cause is gone.
	h.factory.err = nil
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !h.m.Ready() {
		t.Fatalf("not ready after retry")
	}
}

func TestInitialize_ConstructionPanicIsContained(t *testing.T) {
	h := newHarness(t, "Local B")
	h.factory.panics = true
	err := h.m.Initialize(testCtx(t))
	if !errors.Is(err, engine.ErrConstruction) {
		t.Fatalf("err = %v, want ErrConstruction", err)
	}
	if h.m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", h.m.State())
	}
}

func TestInitialize_DownloadFailure(t *testing.T) {
	h := newHarness(t, "Local A")
	h.acq.err = errBoom
	if err := h.m.Initialize(testCtx(t)); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want errBoom", err)
	}
	if h.m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", h.m.State())
	}
	if len(h.factory.made) != 0 {
		t.Fatalf("engine built after failed download")
	}
}

func TestInitialize_Remote(t *testing.T) {
	h := newHarness(t, "Remote")
	if err := h.m.Initialize(testCtx(t)); !errors.Is(err, ErrRemoteNotConfigured) {
		t.Fatalf("err = %v, want ErrRemoteNotConfigured", err)
	}
	if h.m.State() != StateFailed {
		t.Fatalf("state = %s, want failed", h.m.State())
	}

	p := h.prefs.Get()
	p.Remote = prefs.RemoteEndpoint{URL: "http://127.0.0.1:1", APIKey: "k"}
	h.prefs.Set(p)
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if !h.m.Ready() {
		t.Fatalf("configured remote should be ready")
	}
	if h.acq.calls.Load() != 0 {
		t.Fatalf("remote must not acquire artifacts")
	}
}

func TestStart_InitializesInBackground(t *testing.T) {
	h := newHarness(t, "Local A")
	h.m.Start()
	waitFor(t, "ready", h.m.Ready)
}

func TestProgressListener_ReceivesPercentages(t *testing.T) {
	h := newHarness(t, "Local A")
	var mu sync.Mutex
	var got []int
	h.m.SetProgressListener(func(p int) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	waitFor(t, "progress 100", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	})
	mu.Lock()
	defer mu.Unlock()
	if got[0] != 50 || got[1] != 100 {
		t.Fatalf("progress = %v, want [50 100]", got)
	}
}

func TestRemote_PicksUpCredentialEditsWithoutSwitch(t *testing.T) {
	var mu sync.Mutex
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = append(auth, r.Header.Get("Authorization"))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	defer srv.Close()

	h := newHarness(t, "Remote", func(c *ManagerConfig) { c.Factory = DefaultFactory(FactoryOptions{}) })
	p := h.prefs.Get()
	p.Remote = prefs.RemoteEndpoint{URL: srv.URL, APIKey: "old-key"}
	h.prefs.Set(p)
	if err := h.m.Initialize(testCtx(t)); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := h.m.GenerateSync(testCtx(t), "hi", ""); err != nil {
		t.Fatalf("GenerateSync: %v", err)
	}

	p.Remote.APIKey = "new-key"
	h.prefs.Set(p)
	out, err := h.m.GenerateSync(testCtx(t), "hi again", "")
	if err != nil {
		t.Fatalf("GenerateSync after edit: %v", err)
	}
	if out.Text != "ok" {
		t.Fatalf("text = %q", out.Text)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(auth) != 2 || auth[0] != "Bearer old-key" || auth[1] != "Bearer new-key" {
		t.Fatalf("authorization headers = %v", auth)
	}

	p.Remote = prefs.RemoteEndpoint{}
	h.prefs.Set(p)
	if h.m.Ready() {
		t.Fatalf("cleared credentials should drop readiness")
	}
}
