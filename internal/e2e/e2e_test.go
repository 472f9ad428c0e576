package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"inferd/internal/engine"
	"inferd/internal/manager"
	"inferd/internal/prefs"
	"inferd/internal/prompt"
	"inferd/internal/registry"
	"inferd/pkg/types"
)

func TestE2E_RemoteGenerate(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []prompt.Message
	)
	openai := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []prompt.Message `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		mu.Lock()
		seen = body.Messages
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Looking it up [SEARCH:weather today]"}}]}`))
	}))
	defer openai.Close()

	p := prefs.Defaults()
	p.SelectedModel = "Remote"
	p.Remote = prefs.RemoteEndpoint{URL: openai.URL, APIKey: "k"}
	st := prefs.NewStatic(p)
	srv, _ := newServer(t, manager.ManagerConfig{Prefs: st})

	resp, body := httpPostJSON(t, srv.URL+"/initialize?wait=true", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: %d %s", resp.StatusCode, body)
	}
	if resp, _ := httpGet(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: %d", resp.StatusCode)
	}

	resp, body = httpPostJSON(t, srv.URL+"/generate", `{"prompt":"what is the weather","screen_context":"home screen"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", resp.StatusCode, body)
	}
	var gr types.GenerateResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if gr.Backend != "remote" || gr.Model != "Remote" || gr.Text != "Looking it up" {
		t.Fatalf("unexpected response: %+v", gr)
	}
	if len(gr.Commands) != 1 || gr.Commands[0].Kind != "search" || gr.Commands[0].Arg != "weather today" {
		t.Fatalf("unexpected commands: %+v", gr.Commands)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0].Role != "system" || seen[1].Role != "user" {
		t.Fatalf("unexpected messages: %+v", seen)
	}
	if seen[0].Content != strings.TrimSpace(st.Preamble()) {
		t.Fatalf("system message is not the persona preamble: %q", seen[0].Content)
	}
	if want := "CURRENT SCREEN CONTEXT:\nhome screen\n\nwhat is the weather"; seen[1].Content != want {
		t.Fatalf("user message = %q", seen[1].Content)
	}
}

func TestE2E_DownloadThenLoad(t *testing.T) {
	art, hits := artifactServer(t, 2000)
	dir := t.TempDir()
	factory := func(desc registry.Descriptor, path string, _ func() prefs.RemoteEndpoint) (engine.Backend, error) {
		return &echoBackend{}, nil
	}
	srv, mgr := newServer(t, manager.ManagerConfig{
		Catalog:   localCatalog(t, art.URL+"/local.gguf"),
		ModelsDir: dir,
		Factory:   factory,
	})

	resp, body := httpPostJSON(t, srv.URL+"/initialize", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("initialize: %d %s", resp.StatusCode, body)
	}
	waitUntil(t, "ready", mgr.Ready)
	if hits.Load() != 1 {
		t.Fatalf("artifact fetched %d times", hits.Load())
	}
	if fi, err := os.Stat(filepath.Join(dir, "local.gguf")); err != nil || fi.Size() != 2000 {
		t.Fatalf("artifact not installed: %v", err)
	}

	_, body = httpGet(t, srv.URL+"/models")
	var mr types.ModelsResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !mr.Models[0].Installed || !mr.Models[0].Selected {
		t.Fatalf("unexpected model flags: %+v", mr.Models[0])
	}

	_, body = httpGet(t, srv.URL+"/status")
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("json: %v", err)
	}
	if st.State != "ready" || st.Percent != 100 || st.Backend != "managed" {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestE2E_MeteredNeedsConsent(t *testing.T) {
	art, hits := artifactServer(t, 2000)
	probe := &staticProbe{}
	factory := func(registry.Descriptor, string, func() prefs.RemoteEndpoint) (engine.Backend, error) {
		return &echoBackend{}, nil
	}
	srv, mgr := newServer(t, manager.ManagerConfig{
		Catalog: localCatalog(t, art.URL+"/local.gguf"),
		Probe:   probe,
		Factory: factory,
	})

	resp, body := httpPostJSON(t, srv.URL+"/initialize?wait=true", "")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d %s", resp.StatusCode, body)
	}
	if hits.Load() != 0 {
		t.Fatalf("metered network was used without consent")
	}
	if resp, _ := httpPostJSON(t, srv.URL+"/generate", `{"prompt":"hi"}`); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("generate before load: %d", resp.StatusCode)
	}

	resp, body = httpPostJSON(t, srv.URL+"/download?wait=true", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("download: %d %s", resp.StatusCode, body)
	}
	if !mgr.Ready() || hits.Load() != 1 {
		t.Fatalf("ready=%v hits=%d", mgr.Ready(), hits.Load())
	}
}

func TestE2E_Backpressure429(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "local.gguf"), make([]byte, 1000), 0o644); err != nil {
		t.Fatal(err)
	}
	be := &echoBackend{gate: make(chan struct{})}
	factory := func(registry.Descriptor, string, func() prefs.RemoteEndpoint) (engine.Backend, error) { return be, nil }
	srv, mgr := newServer(t, manager.ManagerConfig{
		Catalog:       localCatalog(t, ""),
		ModelsDir:     dir,
		Factory:       factory,
		MaxQueueDepth: 1,
	})
	if resp, body := httpPostJSON(t, srv.URL+"/initialize?wait=true", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize: %d %s", resp.StatusCode, body)
	}

	codes := make(chan int, 2)
	for i := 0; i < 2; i++ {
		go func() {
			resp, err := http.Post(srv.URL+"/generate", "application/json", strings.NewReader(`{"prompt":"hello"}`))
			if err != nil {
				codes <- 0
				return
			}
			_ = resp.Body.Close()
			codes <- resp.StatusCode
		}()
	}
	waitUntil(t, "one in flight and one queued", func() bool {
		s := mgr.Snapshot()
		return s.InFlight && s.QueueDepth == 1
	})

	resp, _ := httpPostJSON(t, srv.URL+"/generate", `{"prompt":"hello"}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}

	close(be.gate)
	for i := 0; i < 2; i++ {
		if code := <-codes; code != http.StatusOK {
			t.Fatalf("accepted request finished with %d", code)
		}
	}
}

func TestE2E_SwitchUnknownModel(t *testing.T) {
	srv, _ := newServer(t, manager.ManagerConfig{Catalog: localCatalog(t, "")})
	if resp, _ := httpPostJSON(t, srv.URL+"/switch", `{"model":"nope"}`); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
