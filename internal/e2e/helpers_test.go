package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/acquire"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/internal/prefs"
	"inferd/internal/registry"
)

// staticProbe answers the environment questions with fixed values.
type staticProbe struct{ unmetered atomic.Bool }

func (p *staticProbe) IsUnmeteredNetwork() bool     { return p.unmetered.Load() }
func (p *staticProbe) AvailableBytes(string) uint64 { return 1 << 40 }

// echoBackend stands in for a local engine. A non-nil gate holds every
// generation until it is closed.
type echoBackend struct {
	gate   chan struct{}
	closed atomic.Bool
}

func (b *echoBackend) Generate(ctx context.Context, p string) (engine.Result, error) {
	if b.gate != nil {
		<-b.gate
	}
	return engine.Result{Text: "echo", Elapsed: time.Millisecond}, nil
}

func (b *echoBackend) IsReady() bool { return !b.closed.Load() }
func (b *echoBackend) Close() error  { b.closed.Store(true); return nil }

// artifactServer serves size bytes at any path and counts requests.
func artifactServer(t *testing.T, size int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", strconv.Itoa(size))
		_, _ = w.Write(bytes.Repeat([]byte{'g'}, size))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

// localCatalog describes one managed model fetched from url.
func localCatalog(t *testing.T, url string) *registry.Catalog {
	t.Helper()
	c, err := registry.NewCatalog([]registry.Descriptor{
		{Name: "Local", FileName: "local.gguf", URL: url, MinValidBytes: 1000, Backend: registry.KindManaged},
		{Name: "Remote", Backend: registry.KindRemote},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

// newServer wires a manager behind the HTTP mux. Unset fields keep the
// production defaults, with the downloader bound to the supplied probe.
func newServer(t *testing.T, cfg manager.ManagerConfig) (*httptest.Server, *manager.Manager) {
	t.Helper()
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = t.TempDir()
	}
	if cfg.Probe == nil {
		p := &staticProbe{}
		p.unmetered.Store(true)
		cfg.Probe = p
	}
	if cfg.Acquirer == nil {
		cfg.Acquirer = acquire.New(acquire.Config{Space: cfg.Probe, Log: zerolog.Nop()})
	}
	if cfg.Prefs == nil {
		cfg.Prefs = prefs.NewStatic(prefs.Defaults())
	}
	events := manager.NewBroadcaster(16)
	cfg.Publisher = events
	mgr := manager.NewWithConfig(cfg)
	srv := httptest.NewServer(httpapi.NewMux(mgr, events))
	t.Cleanup(func() {
		srv.Close()
		_ = mgr.Close()
	})
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewBufferString(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
